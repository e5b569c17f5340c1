package translate

import (
	"errors"
	"strings"
	"time"
)

// AutoLanguage asks the provider to detect the source language.
const AutoLanguage = "auto"

var (
	ErrEmptySpan   = errors.New("text span is empty")
	ErrEmptyTarget = errors.New("target language is required")
	ErrNilProvider = errors.New("provider cannot be nil")
)

// TextSpan is the captured selection. It is never empty.
type TextSpan struct {
	Content          string
	DetectedLanguage string
	CapturedAt       time.Time
}

// NewTextSpan builds a span from captured text. Whitespace-only content is
// rejected with ErrEmptySpan.
func NewTextSpan(content string, capturedAt time.Time) (TextSpan, error) {
	if strings.TrimSpace(content) == "" {
		return TextSpan{}, ErrEmptySpan
	}
	return TextSpan{Content: content, CapturedAt: capturedAt}, nil
}

// WithLanguage returns a copy of the span tagged with a detected language.
func (s TextSpan) WithLanguage(code string) TextSpan {
	s.DetectedLanguage = NormalizeLanguage(code)
	return s
}

// Equal reports whether two spans carry the same selection. The capture
// timestamp is ignored so repeated captures of an unchanged selection compare equal.
func (s TextSpan) Equal(other TextSpan) bool {
	return s.Content == other.Content && s.DetectedLanguage == other.DetectedLanguage
}

// IsZero reports whether the span was never populated.
func (s TextSpan) IsZero() bool { return s.Content == "" }

// LanguagePair is a source/target language combination. Source may be AutoLanguage.
type LanguagePair struct {
	Source string
	Target string
}

func (p LanguagePair) String() string { return p.Source + "->" + p.Target }

// IsAuto reports whether the source language is left to the provider.
func (p LanguagePair) IsAuto() bool { return p.Source == "" || p.Source == AutoLanguage }

// NormalizeLanguage trims and lower-cases a language code, keeping region
// suffixes ("zh-CN" -> "zh-cn"). An empty code stays empty.
func NormalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Request is one translation job, shared read-only across provider attempts.
type Request struct {
	Span   TextSpan
	Source string
	Target string
}

// NewRequest builds a request. An empty source means AutoLanguage.
func NewRequest(span TextSpan, source, target string) (Request, error) {
	if span.IsZero() || strings.TrimSpace(span.Content) == "" {
		return Request{}, ErrEmptySpan
	}
	target = NormalizeLanguage(target)
	if target == "" || target == AutoLanguage {
		return Request{}, ErrEmptyTarget
	}
	source = NormalizeLanguage(source)
	if source == "" {
		source = AutoLanguage
	}
	return Request{Span: span, Source: source, Target: target}, nil
}

// Text returns the content to translate.
func (r Request) Text() string { return r.Span.Content }

// Pair returns the request's language pair.
func (r Request) Pair() LanguagePair {
	return LanguagePair{Source: r.Source, Target: r.Target}
}

// Result is a successful translation.
type Result struct {
	Text           string
	SourceLanguage string
	Provider       string
	Latency        time.Duration
}

// ResolveSource picks the source language reported for a result: the
// provider's detection first, then an explicit request source, then the
// span's locally detected language.
func ResolveSource(req Request, detected string) string {
	if d := NormalizeLanguage(detected); d != "" {
		return d
	}
	if !req.Pair().IsAuto() {
		return req.Source
	}
	return req.Span.DetectedLanguage
}
