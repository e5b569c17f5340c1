package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"swiftlingo/src/provider/deepl"
	"swiftlingo/src/provider/googlecloud"
	"swiftlingo/src/provider/googlefree"
	"swiftlingo/src/provider/libretranslate"
	"swiftlingo/src/provider/llm"
	"swiftlingo/src/provider/microsoft"
	"swiftlingo/src/translate"
)

// Environment variables that key the built-in provider list.
const (
	DeepLKeyEnvVar          = "DEEPL_API_KEY"
	GoogleKeyEnvVar         = "GOOGLE_TRANSLATE_API_KEY"
	MicrosoftKeyEnvVar      = "MICROSOFT_TRANSLATOR_KEY"
	MicrosoftRegionEnvVar   = "MICROSOFT_TRANSLATOR_REGION"
	LibreTranslateKeyEnvVar = "LIBRETRANSLATE_API_KEY"
	LLMKeyEnvVar            = "OPENAI_API_KEY"
	LLMBaseURLEnvVar        = "OPENAI_BASE_URL"
	LLMModelEnvVar          = "OPENAI_MODEL"

	DefaultLLMModel = "gpt-4o-mini"
)

type providersFile struct {
	Providers []providerEntry `yaml:"providers"`
}

type providerEntry struct {
	ID         string        `yaml:"id"`
	Kind       string        `yaml:"kind"`
	Rank       *int          `yaml:"rank"`
	Endpoint   string        `yaml:"endpoint"`
	Region     string        `yaml:"region"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Timeout    time.Duration `yaml:"timeout"`
	Enabled    *bool         `yaml:"enabled"`
}

func readProvidersFile(path string, getenv func(string) string) ([]translate.ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProviders(data, getenv)
}

// ParseProviders decodes a providers document. Missing ids default to the
// kind, missing ranks to the list position, missing enabled flags to true.
// ${VAR} references in api_key are expanded; a readable api_key_file wins.
func ParseProviders(data []byte, getenv func(string) string) ([]translate.ProviderConfig, error) {
	var doc providersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}
	out := make([]translate.ProviderConfig, 0, len(doc.Providers))
	for i, e := range doc.Providers {
		kind := strings.ToLower(strings.TrimSpace(e.Kind))
		if kind == "" {
			return nil, fmt.Errorf("provider #%d has no kind", i+1)
		}
		c := translate.ProviderConfig{
			ID:         strings.TrimSpace(e.ID),
			Kind:       kind,
			Rank:       i + 1,
			Endpoint:   strings.TrimSpace(e.Endpoint),
			Region:     strings.TrimSpace(e.Region),
			Model:      strings.TrimSpace(e.Model),
			Credential: resolveKey(e.APIKey, e.APIKeyFile, getenv),
			Timeout:    e.Timeout,
			Enabled:    e.Enabled == nil || *e.Enabled,
		}
		if c.ID == "" {
			c.ID = kind
		}
		if e.Rank != nil {
			c.Rank = *e.Rank
		}
		out = append(out, c)
	}
	return out, nil
}

func resolveKey(key, keyFile string, getenv func(string) string) string {
	if keyFile = strings.TrimSpace(keyFile); keyFile != "" {
		if data, err := os.ReadFile(keyFile); err == nil {
			if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
				return fileKey
			}
		}
	}
	return strings.TrimSpace(os.Expand(key, getenv))
}

// DefaultProviders is the list used when no providers file exists: the free
// Google endpoint first, the public LibreTranslate instance second, and the
// keyed services after them, enabled only once their key is set.
func DefaultProviders(getenv func(string) string) []translate.ProviderConfig {
	keyed := func(v string) bool { return strings.TrimSpace(getenv(v)) != "" }
	model := getenv(LLMModelEnvVar)
	if model == "" {
		model = DefaultLLMModel
	}
	return []translate.ProviderConfig{
		{ID: googlefree.Kind, Kind: googlefree.Kind, Rank: 1, Enabled: true},
		{
			ID: libretranslate.Kind, Kind: libretranslate.Kind, Rank: 2,
			Endpoint: libretranslate.PublicEndpoint, Credential: getenv(LibreTranslateKeyEnvVar), Enabled: true,
		},
		{ID: deepl.Kind, Kind: deepl.Kind, Rank: 3, Credential: getenv(DeepLKeyEnvVar), Enabled: keyed(DeepLKeyEnvVar)},
		{ID: googlecloud.Kind, Kind: googlecloud.Kind, Rank: 4, Credential: getenv(GoogleKeyEnvVar), Enabled: keyed(GoogleKeyEnvVar)},
		{
			ID: microsoft.Kind, Kind: microsoft.Kind, Rank: 5,
			Credential: getenv(MicrosoftKeyEnvVar), Region: getenv(MicrosoftRegionEnvVar), Enabled: keyed(MicrosoftKeyEnvVar),
		},
		{
			ID: llm.Kind, Kind: llm.Kind, Rank: 6, Endpoint: getenv(LLMBaseURLEnvVar), Model: model,
			Credential: getenv(LLMKeyEnvVar), Enabled: keyed(LLMKeyEnvVar),
		},
	}
}
