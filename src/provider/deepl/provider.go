// Package deepl implements the DeepL v2 translate API. Keys ending in ":fx"
// belong to the free plan and are routed to the free host.
package deepl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind         = "deepl"
	freeEndpoint = "https://api-free.deepl.com/v2/translate"
	proEndpoint  = "https://api.deepl.com/v2/translate"

	// statusQuotaExceeded is DeepL's "quota exceeded" answer.
	statusQuotaExceeded = 456
)

var targets = map[string]bool{
	"ar": true, "bg": true, "cs": true, "da": true, "de": true, "el": true,
	"en": true, "en-gb": true, "en-us": true, "es": true, "et": true, "fi": true,
	"fr": true, "hu": true, "id": true, "it": true, "ja": true, "ko": true,
	"lt": true, "lv": true, "nb": true, "nl": true, "pl": true, "pt": true,
	"pt-br": true, "pt-pt": true, "ro": true, "ru": true, "sk": true, "sl": true,
	"sv": true, "tr": true, "uk": true, "zh": true, "zh-cn": true, "zh-hans": true,
}

type Provider struct {
	cfg    translate.ProviderConfig
	caller *transport.Caller
}

func New(cfg translate.ProviderConfig, client *http.Client) *Provider {
	return &Provider{cfg: cfg, caller: transport.New(cfg.ID, client)}
}

func (p *Provider) Name() string { return p.cfg.ID }

// Supports requires a key and a target DeepL can produce.
func (p *Provider) Supports(pair translate.LanguagePair) bool {
	if p.cfg.Credential == "" {
		return false
	}
	return targets[pair.Target]
}

// Endpoint returns the host matching the key's plan unless one is configured.
func (p *Provider) Endpoint() string {
	if p.cfg.Endpoint != "" {
		return p.cfg.Endpoint
	}
	if strings.HasSuffix(p.cfg.Credential, ":fx") {
		return freeEndpoint
	}
	return proEndpoint
}

type response struct {
	Translations []struct {
		Text                   string `json:"text"`
		DetectedSourceLanguage string `json:"detected_source_language"`
	} `json:"translations"`
	Message string `json:"message,omitempty"`
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	if p.cfg.Credential == "" {
		return translate.Result{}, p.caller.AuthMissing("DeepL API key not configured")
	}
	if !targets[req.Target] {
		return translate.Result{}, p.caller.Unsupported(req.Pair())
	}
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	form.Set("text", req.Text())
	form.Set("target_lang", TargetCode(req.Target))
	if !req.Pair().IsAuto() {
		form.Set("source_lang", SourceCode(req.Source))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return translate.Result{}, p.caller.Malformed("build request: %v", err)
	}
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+p.cfg.Credential)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp response
	if err := p.caller.DoJSON(httpReq, &resp); err != nil {
		return translate.Result{}, quota(err)
	}
	if len(resp.Translations) == 0 || resp.Translations[0].Text == "" {
		return translate.Result{}, p.caller.Malformed("unexpected response format")
	}
	tr := resp.Translations[0]

	logutil.FromContext(ctx).Debug("deepl translated",
		logutil.String("endpoint", p.Endpoint()), logutil.Int("chars", len(tr.Text)))

	return translate.Result{
		Text:           tr.Text,
		SourceLanguage: translate.ResolveSource(req, strings.ToLower(tr.DetectedSourceLanguage)),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}

// quota reclassifies DeepL's 456 answer, which transport sees as a plain 4xx.
func quota(err error) error {
	pe, ok := err.(*translate.ProviderError)
	if !ok || pe.Kind != translate.KindMalformed {
		return err
	}
	if strings.Contains(pe.Message, "status 456") {
		cp := *pe
		cp.Kind = translate.KindRateLimited
		cp.Message = "quota exceeded"
		return &cp
	}
	return err
}

// TargetCode maps a normalised code onto DeepL's target codes.
func TargetCode(lang string) string {
	switch lang {
	case "en":
		return "EN-US"
	case "pt":
		return "PT-BR"
	case "zh-cn", "zh-hans":
		return "ZH"
	}
	return strings.ToUpper(lang)
}

// SourceCode maps a normalised code onto DeepL's source codes, which carry no
// regional variant.
func SourceCode(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return strings.ToUpper(lang)
}
