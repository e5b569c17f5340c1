// Package googlecloud translates through the official Cloud Translation v2
// API, authenticated with an API key.
package googlecloud

import (
	"context"
	"html"
	"net/http"
	"net/url"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/googlefree"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind            = "google-cloud"
	defaultEndpoint = "https://translation.googleapis.com/language/translate/v2"
)

// Provider implements translate.Provider for Cloud Translation v2.
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

// Supports requires an API key.
func (p *Provider) Supports(pair translate.LanguagePair) bool {
	return p.cfg.Credential != "" && pair.Target != ""
}

type response struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	if p.cfg.Credential == "" {
		return translate.Result{}, p.caller.AuthMissing("Google Translate API key not configured")
	}
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("key", p.cfg.Credential)
	q.Set("target", googlefree.Code(req.Target))
	if !req.Pair().IsAuto() {
		q.Set("source", googlefree.Code(req.Source))
	}
	q.Set("format", "text")
	q.Set("q", req.Text())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return translate.Result{}, p.caller.Malformed("build request: %v", err)
	}

	var resp response
	if err := p.caller.DoJSON(httpReq, &resp); err != nil {
		return translate.Result{}, err
	}
	if len(resp.Data.Translations) == 0 || resp.Data.Translations[0].TranslatedText == "" {
		return translate.Result{}, p.caller.Malformed("unexpected response format")
	}
	tr := resp.Data.Translations[0]

	logutil.FromContext(ctx).Debug("google-cloud translated", logutil.Int("chars", len(tr.TranslatedText)))

	return translate.Result{
		Text:           html.UnescapeString(tr.TranslatedText),
		SourceLanguage: translate.ResolveSource(req, tr.DetectedSourceLanguage),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}
