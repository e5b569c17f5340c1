// Package googlefree translates through the keyless web endpoint used by the
// Google Translate browser widget (client=gtx).
package googlefree

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind            = "google-free"
	defaultEndpoint = "https://translate.googleapis.com/translate_a/single"
)

// Provider implements translate.Provider for the free Google endpoint.
type Provider struct {
	cfg      translate.ProviderConfig
	endpoint string
	caller   *transport.Caller
}

// New creates the provider. cfg.Endpoint overrides the public endpoint.
func New(cfg translate.ProviderConfig, client *http.Client) *Provider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Provider{cfg: cfg, endpoint: endpoint, caller: transport.New(cfg.ID, client)}
}

func (p *Provider) Name() string { return p.cfg.ID }

// Supports accepts any pair; the endpoint needs no credential.
func (p *Provider) Supports(pair translate.LanguagePair) bool {
	return pair.Target != ""
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", Code(req.Source))
	q.Set("tl", Code(req.Target))
	q.Set("dt", "t")
	q.Set("q", req.Text())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return translate.Result{}, p.caller.Malformed("build request: %v", err)
	}

	var raw []json.RawMessage
	if err := p.caller.DoJSON(httpReq, &raw); err != nil {
		return translate.Result{}, err
	}

	text, detected, perr := parseResponse(raw)
	if perr != "" {
		return translate.Result{}, p.caller.Malformed("%s", perr)
	}

	logutil.FromContext(ctx).Debug("google-free translated",
		logutil.Int("chars", len(text)), logutil.String("detected", detected))

	return translate.Result{
		Text:           text,
		SourceLanguage: translate.ResolveSource(req, detected),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}

// parseResponse joins the translated segments at [0][i][0]; the detected
// source language sits at [2].
func parseResponse(raw []json.RawMessage) (string, string, string) {
	if len(raw) == 0 {
		return "", "", "unexpected response format"
	}
	var segments [][]json.RawMessage
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", "", "unexpected response format: " + err.Error()
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		b.WriteString(part)
	}
	if b.Len() == 0 {
		return "", "", "response contained no translation"
	}

	var detected string
	if len(raw) > 2 {
		_ = json.Unmarshal(raw[2], &detected)
	}
	return b.String(), detected, ""
}

// Code converts a normalised code to Google's form ("zh-cn" -> "zh-CN").
func Code(lang string) string {
	if lang == "" {
		return translate.AutoLanguage
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i] + "-" + strings.ToUpper(lang[i+1:])
	}
	return lang
}
