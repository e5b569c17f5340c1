package translate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Provider is implemented by every translation backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Supports reports whether the provider can structurally serve the pair
	// (credential present, languages known). It must not touch the network.
	Supports(pair LanguagePair) bool

	// Translate performs one attempt bounded by timeout. Errors are always
	// *ProviderError.
	Translate(ctx context.Context, req Request, timeout time.Duration) (Result, error)
}

// DefaultTimeout applies when a provider config leaves Timeout unset.
const DefaultTimeout = 5 * time.Second

// ProviderConfig describes one configured backend.
type ProviderConfig struct {
	ID         string
	Kind       string
	Rank       int
	Endpoint   string
	Region     string
	Model      string
	Credential string
	Timeout    time.Duration
	Enabled    bool
}

// EffectiveTimeout returns Timeout or DefaultTimeout.
func (c ProviderConfig) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// ConfigErrorKind names a configuration validation failure.
type ConfigErrorKind string

const (
	ConfigDuplicatePriority  ConfigErrorKind = "DuplicatePriority"
	ConfigNoEnabledProviders ConfigErrorKind = "NoEnabledProviders"
	ConfigUnknownKind        ConfigErrorKind = "UnknownKind"
	ConfigInvalidLanguage    ConfigErrorKind = "InvalidLanguage"
	ConfigInvalid            ConfigErrorKind = "Invalid"
)

var (
	ErrDuplicatePriority  = errors.New("provider priority ranks must be unique")
	ErrNoEnabledProviders = errors.New("no enabled translation providers")
	ErrUnknownKind        = errors.New("unknown provider kind")
	ErrInvalidLanguage    = errors.New("invalid language code")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// ConfigError is returned by configuration validation.
type ConfigError struct {
	Kind   ConfigErrorKind
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", e.sentinel(), e.Detail)
}

func (e *ConfigError) Is(target error) bool { return target == e.sentinel() }

func (e *ConfigError) sentinel() error {
	switch e.Kind {
	case ConfigDuplicatePriority:
		return ErrDuplicatePriority
	case ConfigNoEnabledProviders:
		return ErrNoEnabledProviders
	case ConfigUnknownKind:
		return ErrUnknownKind
	case ConfigInvalidLanguage:
		return ErrInvalidLanguage
	default:
		return ErrInvalidConfig
	}
}

// ValidateConfigs checks rank uniqueness, identifier uniqueness and that at
// least one provider is enabled.
func ValidateConfigs(configs []ProviderConfig) error {
	ranks := make(map[int]string, len(configs))
	ids := make(map[string]bool, len(configs))
	enabled := 0
	for _, c := range configs {
		if c.ID == "" {
			return &ConfigError{Kind: ConfigInvalid, Detail: fmt.Sprintf("provider with rank %d has no id", c.Rank)}
		}
		if ids[c.ID] {
			return &ConfigError{Kind: ConfigInvalid, Detail: fmt.Sprintf("provider id %q declared twice", c.ID)}
		}
		ids[c.ID] = true
		if other, ok := ranks[c.Rank]; ok {
			return &ConfigError{
				Kind:   ConfigDuplicatePriority,
				Detail: fmt.Sprintf("%q and %q share rank %d", other, c.ID, c.Rank),
			}
		}
		ranks[c.Rank] = c.ID
		if c.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return &ConfigError{Kind: ConfigNoEnabledProviders}
	}
	return nil
}

// SortByRank returns a rank-ordered copy of configs.
func SortByRank(configs []ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, len(configs))
	copy(out, configs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Entry pairs a provider with the config snapshot it was built from.
type Entry struct {
	Config   ProviderConfig
	Provider Provider
}

// Chain is an immutable, rank-ordered provider list handed to one pipeline run.
type Chain struct {
	entries []Entry
}

// NewChain validates and orders entries. Ranks must be unique.
func NewChain(entries []Entry) (Chain, error) {
	configs := make([]ProviderConfig, 0, len(entries))
	for _, e := range entries {
		if e.Provider == nil {
			return Chain{}, fmt.Errorf("%w: %s", ErrNilProvider, e.Config.ID)
		}
		configs = append(configs, e.Config)
	}
	if err := ValidateConfigs(configs); err != nil {
		return Chain{}, err
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Config.Rank < sorted[j].Config.Rank })
	return Chain{entries: sorted}, nil
}

// Entries returns a copy of the ordered entries.
func (c Chain) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c Chain) Len() int { return len(c.entries) }

// IDs returns provider identifiers in rank order.
func (c Chain) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		ids = append(ids, e.Config.ID)
	}
	return ids
}
