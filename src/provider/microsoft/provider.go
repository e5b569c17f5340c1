// Package microsoft implements the Azure AI Translator v3 API.
package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind            = "microsoft"
	defaultEndpoint = "https://api.cognitive.microsofttranslator.com/translate"
	apiVersion      = "3.0"
)

type Provider struct {
	cfg      translate.ProviderConfig
	endpoint string
	caller   *transport.Caller
}

func New(cfg translate.ProviderConfig, client *http.Client) *Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Provider{cfg: cfg, endpoint: endpoint, caller: transport.New(cfg.ID, client)}
}

func (p *Provider) Name() string { return p.cfg.ID }

func (p *Provider) Supports(pair translate.LanguagePair) bool {
	return p.cfg.Credential != "" && pair.Target != ""
}

type textItem struct {
	Text string `json:"Text"`
}

type responseItem struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage,omitempty"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	if p.cfg.Credential == "" {
		return translate.Result{}, p.caller.AuthMissing("Microsoft Translator API key not configured")
	}
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("api-version", apiVersion)
	q.Set("to", Code(req.Target))
	if !req.Pair().IsAuto() {
		q.Set("from", Code(req.Source))
	}

	body, err := json.Marshal([]textItem{{Text: req.Text()}})
	if err != nil {
		return translate.Result{}, p.caller.Malformed("marshal request: %v", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return translate.Result{}, p.caller.Malformed("build request: %v", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.cfg.Credential)
	if p.cfg.Region != "" {
		httpReq.Header.Set("Ocp-Apim-Subscription-Region", p.cfg.Region)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp []responseItem
	if err := p.caller.DoJSON(httpReq, &resp); err != nil {
		return translate.Result{}, err
	}
	if len(resp) == 0 || len(resp[0].Translations) == 0 || resp[0].Translations[0].Text == "" {
		return translate.Result{}, p.caller.Malformed("unexpected response format")
	}

	detected := ""
	if resp[0].DetectedLanguage != nil {
		detected = resp[0].DetectedLanguage.Language
	}
	text := resp[0].Translations[0].Text
	logutil.FromContext(ctx).Debug("microsoft translated",
		logutil.String("region", p.cfg.Region), logutil.Int("chars", len(text)))

	return translate.Result{
		Text:           text,
		SourceLanguage: translate.ResolveSource(req, detected),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}

// Code maps normalised codes onto Translator's script-tagged Chinese codes.
func Code(lang string) string {
	switch lang {
	case "zh-cn", "zh-hans", "zh":
		return "zh-Hans"
	case "zh-tw", "zh-hant":
		return "zh-Hant"
	}
	return lang
}
