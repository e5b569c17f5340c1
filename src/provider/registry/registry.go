// Package registry maps provider kinds to constructors and turns validated
// provider configs into a translate.Chain.
package registry

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"swiftlingo/src/provider/deepl"
	"swiftlingo/src/provider/googlecloud"
	"swiftlingo/src/provider/googlefree"
	"swiftlingo/src/provider/libretranslate"
	"swiftlingo/src/provider/llm"
	"swiftlingo/src/provider/microsoft"
	"swiftlingo/src/translate"
)

// Factory builds a provider from its config.
type Factory func(cfg translate.ProviderConfig, client *http.Client) translate.Provider

// Decorator wraps a built provider, e.g. with a cache.
type Decorator func(translate.Provider) translate.Provider

// Registry holds the known provider kinds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with every built-in backend registered.
func Default() *Registry {
	r := New()
	_ = r.Register(googlefree.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return googlefree.New(c, h)
	})
	_ = r.Register(googlecloud.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return googlecloud.New(c, h)
	})
	_ = r.Register(libretranslate.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return libretranslate.New(c, h)
	})
	_ = r.Register(deepl.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return deepl.New(c, h)
	})
	_ = r.Register(microsoft.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return microsoft.New(c, h)
	})
	_ = r.Register(llm.Kind, func(c translate.ProviderConfig, h *http.Client) translate.Provider {
		return llm.New(c, h)
	})
	return r
}

// Register adds a factory for kind.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" {
		return errors.New("provider kind cannot be empty")
	}
	if f == nil {
		return errors.New("provider factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("provider kind %s already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Known reports whether kind is registered.
func (r *Registry) Known(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Build constructs every configured provider, disabled ones included, and
// returns them as a rank-ordered chain. Disabled entries stay in the chain so
// a run can report them as skipped.
func (r *Registry) Build(configs []translate.ProviderConfig, client *http.Client, decorators ...Decorator) (translate.Chain, error) {
	entries := make([]translate.Entry, 0, len(configs))
	for _, cfg := range configs {
		r.mu.RLock()
		f, ok := r.factories[cfg.Kind]
		r.mu.RUnlock()
		if !ok {
			return translate.Chain{}, &translate.ConfigError{
				Kind:   translate.ConfigUnknownKind,
				Detail: fmt.Sprintf("provider %q has kind %q", cfg.ID, cfg.Kind),
			}
		}
		p := f(cfg, client)
		for _, d := range decorators {
			p = d(p)
		}
		entries = append(entries, translate.Entry{Config: cfg, Provider: p})
	}
	return translate.NewChain(entries)
}
