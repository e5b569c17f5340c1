// Package transport holds the HTTP plumbing shared by the translation
// providers: client construction, request execution under a per-attempt
// timeout, and normalisation of HTTP outcomes into translate.ProviderError.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"swiftlingo/src/translate"
)

const (
	// UserAgent is sent with every provider request.
	UserAgent = "SwiftLingo/1.0 (+https://github.com/anassk01/swiftlingo)"

	maxBodyBytes = 4 << 20
	maxErrorBody = 512
)

// NewHTTPClient returns the client shared by all providers. Per-request
// deadlines come from the attempt context, so the client timeout is only a
// ceiling.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// Caller executes requests for one provider.
type Caller struct {
	Provider string
	Client   *http.Client
	Now      func() time.Time
}

// New returns a Caller. A nil client falls back to NewHTTPClient.
func New(provider string, client *http.Client) *Caller {
	if client == nil {
		client = NewHTTPClient()
	}
	return &Caller{Provider: provider, Client: client, Now: time.Now}
}

// WithTimeout derives the attempt context.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = translate.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// DoJSON executes req and decodes a 2xx JSON body into out. Non-2xx answers
// are classified with Classify; undecodable bodies are Malformed.
func (c *Caller) DoJSON(req *http.Request, out any) error {
	body, err := c.Do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.Malformed("decode response: %v", err)
	}
	return nil
}

// Do executes req and returns the body of a 2xx response.
func (c *Caller) Do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, c.networkError(req.Context(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.networkError(req.Context(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.Classify(resp.StatusCode, resp.Header, body)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, c.Malformed("empty response body")
	}
	return body, nil
}

func (c *Caller) networkError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &translate.ProviderError{
			Provider: c.Provider,
			Kind:     translate.KindUnreachable,
			Message:  "request timed out",
			Err:      err,
		}
	}
	return &translate.ProviderError{
		Provider: c.Provider,
		Kind:     translate.KindUnreachable,
		Message:  fmt.Sprintf("could not connect to translation service: %v", err),
		Err:      err,
	}
}

// Classify maps a non-2xx HTTP answer onto the shared error taxonomy.
func (c *Caller) Classify(status int, header http.Header, body []byte) *translate.ProviderError {
	msg := fmt.Sprintf("server returned status %d", status)
	if snippet := errorSnippet(body); snippet != "" {
		msg += ": " + snippet
	}
	pe := &translate.ProviderError{Provider: c.Provider, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Kind = translate.KindAuthMissing
	case status == http.StatusTooManyRequests:
		pe.Kind = translate.KindRateLimited
		pe.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), c.now())
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && mentionsLanguage(body):
		pe.Kind = translate.KindUnsupportedPair
	case status >= 400 && status < 500:
		pe.Kind = translate.KindMalformed
	default:
		pe.Kind = translate.KindUnreachable
	}
	return pe
}

// Malformed builds a Malformed error for this provider.
func (c *Caller) Malformed(format string, args ...any) *translate.ProviderError {
	return translate.NewProviderError(c.Provider, translate.KindMalformed, format, args...)
}

// AuthMissing builds an AuthMissing error for this provider.
func (c *Caller) AuthMissing(format string, args ...any) *translate.ProviderError {
	return translate.NewProviderError(c.Provider, translate.KindAuthMissing, format, args...)
}

// Unsupported builds an UnsupportedPair error for this provider.
func (c *Caller) Unsupported(pair translate.LanguagePair) *translate.ProviderError {
	return translate.NewProviderError(c.Provider, translate.KindUnsupportedPair, "language pair %s not supported", pair)
}

func (c *Caller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ParseRetryAfter reads a Retry-After header given either as delay seconds or
// as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func errorSnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return strings.ReplaceAll(s, "\n", " ")
}

func mentionsLanguage(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "language") || strings.Contains(s, "lang")
}
