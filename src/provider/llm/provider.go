// Package llm translates with any OpenAI-compatible chat completion endpoint
// (OpenAI, OpenRouter, a local server).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"swiftlingo/src/logutil"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/translate"
)

const (
	Kind           = "llm"
	defaultBaseURL = "https://api.openai.com/v1"

	systemPrompt = "You are a translation engine. Translate the user's text into the requested language. " +
		"Reply with the translation only, without quotes, notes or explanations. Keep line breaks."
)

type Provider struct {
	cfg    translate.ProviderConfig
	client openai.Client
	caller *transport.Caller
}

// New creates the provider. cfg.Model is required; cfg.Endpoint is the API
// base URL.
func New(cfg translate.ProviderConfig, httpClient *http.Client) *Provider {
	caller := transport.New(cfg.ID, httpClient)
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Credential),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(caller.Client),
		// The orchestrator owns retries.
		option.WithMaxRetries(0),
	}
	return &Provider{cfg: cfg, client: openai.NewClient(opts...), caller: caller}
}

func (p *Provider) Name() string { return p.cfg.ID }

func (p *Provider) Supports(pair translate.LanguagePair) bool {
	return p.cfg.Credential != "" && p.cfg.Model != "" && pair.Target != ""
}

func (p *Provider) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	if p.cfg.Credential == "" {
		return translate.Result{}, p.caller.AuthMissing("LLM API key not configured")
	}
	if p.cfg.Model == "" {
		return translate.Result{}, p.caller.Malformed("LLM model not configured")
	}
	start := time.Now()
	ctx, cancel := transport.WithTimeout(ctx, timeout)
	defer cancel()

	logger := logutil.FromContext(ctx)
	logger.Debug("calling chat completion", logutil.String("model", p.cfg.Model))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(req)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return translate.Result{}, p.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return translate.Result{}, p.caller.Malformed("response contained no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return translate.Result{}, p.caller.Malformed("response contained no translation")
	}

	logger.Debug("chat completion succeeded",
		logutil.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		logutil.Int("completion_tokens", int(resp.Usage.CompletionTokens)))

	return translate.Result{
		Text:           text,
		SourceLanguage: translate.ResolveSource(req, ""),
		Provider:       p.Name(),
		Latency:        time.Since(start),
	}, nil
}

// Prompt renders the user message for req.
func Prompt(req translate.Request) string {
	from := "the detected language"
	if !req.Pair().IsAuto() {
		from = req.Source
	} else if req.Span.DetectedLanguage != "" {
		from = req.Span.DetectedLanguage
	}
	return fmt.Sprintf("Translate from %s to %s:\n\n%s", from, req.Target, req.Text())
}

func (p *Provider) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return p.caller.Classify(apiErr.StatusCode, header, []byte(apiErr.Message))
	}
	if ctx.Err() != nil {
		return translate.NewProviderError(p.Name(), translate.KindUnreachable, "request timed out")
	}
	return translate.AsProviderError(p.Name(), err)
}
