// Package libretranslate talks to a LibreTranslate instance, public or
// self-hosted.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind = "libretranslate"
	// PublicEndpoint is the instance used when none is configured explicitly.
	PublicEndpoint = "https://libretranslate.com/translate"
)

type Provider struct {
	cfg    translate.ProviderConfig
	caller *transport.Caller
}

// New creates the provider. cfg.Endpoint must point at the /translate route.
func New(cfg translate.ProviderConfig, client *http.Client) *Provider {
	return &Provider{cfg: cfg, caller: transport.New(cfg.ID, client)}
}

func (p *Provider) Name() string { return p.cfg.ID }

// Supports requires a configured endpoint.
func (p *Provider) Supports(pair translate.LanguagePair) bool {
	return p.cfg.Endpoint != "" && pair.Target != ""
}

type request struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage,omitempty"`
	Error string `json:"error,omitempty"`
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	if p.cfg.Endpoint == "" {
		return translate.Result{}, p.caller.Malformed("LibreTranslate API endpoint not configured")
	}
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(request{
		Q:      req.Text(),
		Source: code(req.Source),
		Target: code(req.Target),
		Format: "text",
		APIKey: p.cfg.Credential,
	})
	if err != nil {
		return translate.Result{}, p.caller.Malformed("marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return translate.Result{}, p.caller.Malformed("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp response
	if err := p.caller.DoJSON(httpReq, &resp); err != nil {
		return translate.Result{}, err
	}
	if resp.Error != "" {
		return translate.Result{}, p.caller.Malformed("%s", resp.Error)
	}
	if resp.TranslatedText == "" {
		return translate.Result{}, p.caller.Malformed("unexpected response format")
	}

	detected := ""
	if resp.DetectedLanguage != nil {
		detected = resp.DetectedLanguage.Language
	}
	logutil.FromContext(ctx).Debug("libretranslate translated",
		logutil.String("endpoint", p.cfg.Endpoint), logutil.Int("chars", len(resp.TranslatedText)))

	return translate.Result{
		Text:           resp.TranslatedText,
		SourceLanguage: translate.ResolveSource(req, detected),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}

// code maps regional codes onto the plain codes LibreTranslate uses, keeping
// the Chinese variants it knows.
func code(lang string) string {
	switch lang {
	case "", translate.AutoLanguage:
		return translate.AutoLanguage
	case "zh-cn", "zh-hans":
		return "zh"
	case "zh-tw", "zh-hant":
		return "zt"
	}
	if len(lang) > 2 && lang[2] == '-' {
		return lang[:2]
	}
	return lang
}
