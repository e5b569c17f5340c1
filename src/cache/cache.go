// Package cache keeps successful translations in Redis so a repeated
// selection does not cost another provider round-trip.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

// ErrMiss indicates no cached entry was found.
var ErrMiss = errors.New("cache miss")

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "swiftlingo:tr:"

// Store is a byte-oriented key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Close() error
}

// Redis implements Store on a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to url (redis://[user:pass@]host:port/db) and pings it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

// Key identifies a translation of req by provider.
func Key(provider string, req translate.Request) string {
	raw := strings.Join([]string{provider, req.Source, req.Target, req.Span.Content}, "|")
	hash := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(hash[:])
}

type entry struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
}

// Cached wraps a provider with a read-through cache. Cache failures are
// logged and never turn into provider errors.
type Cached struct {
	inner translate.Provider
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewCached(inner translate.Provider, store Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{inner: inner, store: store, ttl: ttl, now: time.Now}
}

// Decorator returns a provider decorator for the registry.
func Decorator(store Store, ttl time.Duration) func(translate.Provider) translate.Provider {
	return func(p translate.Provider) translate.Provider { return NewCached(p, store, ttl) }
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Supports(pair translate.LanguagePair) bool { return c.inner.Supports(pair) }

func (c *Cached) Translate(ctx context.Context, req translate.Request, timeout time.Duration) (translate.Result, error) {
	logger := logutil.FromContext(ctx)
	start := c.now()
	key := Key(c.inner.Name(), req)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var e entry
		if jsonErr := json.Unmarshal(data, &e); jsonErr == nil && e.Text != "" {
			logger.Debug("cache hit", logutil.String("provider", c.inner.Name()))
			return translate.Result{
				Text:           e.Text,
				SourceLanguage: translate.ResolveSource(req, e.SourceLanguage),
				Provider:       c.inner.Name(),
				Latency:        c.now().Sub(start),
			}, nil
		}
		logger.Warn("cache entry unreadable", logutil.String("key", key))
	case !errors.Is(err, ErrMiss):
		logger.Warn("cache lookup failed", logutil.Error(err))
	}

	res, err := c.inner.Translate(ctx, req, timeout)
	if err != nil {
		return res, err
	}
	payload, _ := json.Marshal(entry{Text: res.Text, SourceLanguage: res.SourceLanguage})
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := c.store.Set(setCtx, key, payload, c.ttl); err != nil {
		logger.Warn("cache write failed", logutil.Error(err))
	}
	return res, nil
}
