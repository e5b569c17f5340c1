package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"swiftlingo/src/config"
	"swiftlingo/src/eventloop"
	"swiftlingo/src/langdetect"
	"swiftlingo/src/orchestrator"
	"swiftlingo/src/translate"
)

// Translator runs one request through the configured chain without the
// coordinator. The CLI uses it for text given on the command line.
type Translator struct {
	orch     *orchestrator.Orchestrator
	chain    translate.Chain
	detector langdetect.Detector
	source   string
	target   string
	history  eventloop.Recorder
}

func NewTranslator(cfg *config.Config, orch *orchestrator.Orchestrator, chain translate.Chain, history eventloop.Recorder) *Translator {
	detector := langdetect.Off
	if cfg.DetectLanguage {
		detector = langdetect.Lingua
	}
	return &Translator{
		orch:     orch,
		chain:    chain,
		detector: detector,
		source:   cfg.SourceLanguage,
		target:   cfg.TargetLanguage,
		history:  history,
	}
}

// Chain is the provider chain requests are sent through.
func (t *Translator) Chain() translate.Chain { return t.chain }

// Translate translates text. Empty from/to fall back to the configured
// languages. A *translate.Failure is returned when every provider failed.
func (t *Translator) Translate(ctx context.Context, text, from, to string) (translate.Result, error) {
	span, err := translate.NewTextSpan(strings.TrimSpace(text), time.Now())
	if err != nil {
		return translate.Result{}, err
	}
	span = span.WithLanguage(t.detector.Detect(span.Content))
	if from == "" {
		from = t.source
	}
	if to == "" {
		to = t.target
	}
	req, err := translate.NewRequest(span, from, to)
	if err != nil {
		return translate.Result{}, err
	}

	res, err := t.orch.Run(ctx, req, t.chain)
	if t.history != nil {
		var failure *translate.Failure
		switch {
		case err == nil:
			t.history.Record(span, req.Target, &res, nil)
		case errors.As(err, &failure):
			t.history.Record(span, req.Target, nil, failure)
		}
	}
	return res, err
}
