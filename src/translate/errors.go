package translate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure. Every provider maps its own
// failures onto these kinds; nothing provider-specific crosses the boundary.
type ErrorKind int

const (
	KindUnreachable ErrorKind = iota
	KindAuthMissing
	KindRateLimited
	KindMalformed
	KindUnsupportedPair
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthMissing:
		return "AuthMissing"
	case KindRateLimited:
		return "RateLimited"
	case KindMalformed:
		return "Malformed"
	case KindUnsupportedPair:
		return "UnsupportedPair"
	default:
		return "Unreachable"
	}
}

// Kind sentinels, matched by ProviderError.Is.
var (
	ErrAuthMissing     = errors.New("provider credential missing or rejected")
	ErrRateLimited     = errors.New("provider rate limited")
	ErrUnreachable     = errors.New("provider unreachable")
	ErrMalformed       = errors.New("provider response malformed")
	ErrUnsupportedPair = errors.New("language pair not supported")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuthMissing:
		return ErrAuthMissing
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformed:
		return ErrMalformed
	case KindUnsupportedPair:
		return ErrUnsupportedPair
	default:
		return ErrUnreachable
	}
}

// ProviderError is the only error type a Provider returns.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // RateLimited only; zero when the provider gave no hint
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewProviderError builds a ProviderError with a formatted message.
func NewProviderError(provider string, kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsProviderError normalises any error into a ProviderError. Errors that are
// not already ProviderErrors are reported as Unreachable.
func AsProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			cp := *pe
			cp.Provider = provider
			return &cp
		}
		return pe
	}
	return &ProviderError{Provider: provider, Kind: KindUnreachable, Message: err.Error(), Err: err}
}

// Attempt records one provider's failure inside a Failure.
type Attempt struct {
	Provider   string
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
}

// Failure is returned when every configured provider failed.
type Failure struct {
	Attempts []Attempt
	// Skipped lists providers that were disabled or could not serve the pair.
	Skipped []string
}

// ErrAllProvidersFailed is matched by Failure via errors.Is.
var ErrAllProvidersFailed = errors.New("all translation providers failed")

func (f *Failure) Error() string {
	if len(f.Attempts) == 0 {
		if len(f.Skipped) == 0 {
			return ErrAllProvidersFailed.Error() + ": no providers configured"
		}
		return fmt.Sprintf("%s: no provider supports this request (skipped: %s)",
			ErrAllProvidersFailed, strings.Join(f.Skipped, ", "))
	}
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Provider, a.Kind))
	}
	return fmt.Sprintf("%s: %s", ErrAllProvidersFailed, strings.Join(parts, ", "))
}

func (f *Failure) Is(target error) bool { return target == ErrAllProvidersFailed }

// Record appends an attempt built from a provider error.
func (f *Failure) Record(pe *ProviderError) {
	f.Attempts = append(f.Attempts, Attempt{
		Provider:   pe.Provider,
		Kind:       pe.Kind,
		Message:    pe.Message,
		RetryAfter: pe.RetryAfter,
	})
}

// Summary lists the per-provider errors joined by sep, as
// "provider: Kind (message)".
func (f *Failure) Summary(sep string) string {
	if len(f.Attempts) == 0 {
		return f.Error()
	}
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		s := a.Provider + ": " + a.Kind.String()
		if a.Message != "" {
			s += " (" + a.Message + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}
