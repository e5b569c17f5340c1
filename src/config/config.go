package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"swiftlingo/src/translate"
)

const (
	// EnvPathVar names a .env file used when none sits next to the executable.
	EnvPathVar = "SWIFTLINGO_ENV"

	BackendAuto = "auto"
)

type LoadOptions struct {
	// EnvFileOverride replaces the .env lookup.
	EnvFileOverride string
	// ProvidersFileOverride replaces PROVIDERS_FILE.
	ProvidersFileOverride string
	// KnownKind reports whether a provider kind can be built. Nil skips the
	// check.
	KnownKind func(kind string) bool
	// Getenv defaults to os.Getenv; used for ${VAR} expansion and keys.
	Getenv func(string) string
}

// Settings are the scalar options read from the environment.
type Settings struct {
	SourceLanguage         string        `env:"SOURCE_LANGUAGE"          envDefault:"auto"`
	TargetLanguage         string        `env:"TARGET_LANGUAGE"          envDefault:"en"`
	HotkeyTranslate        string        `env:"HOTKEY_TRANSLATE"         envDefault:"Ctrl+Alt+T"`
	HotkeyTranslateReplace string        `env:"HOTKEY_TRANSLATE_REPLACE" envDefault:"Ctrl+Alt+R"`
	HotkeyBackend          string        `env:"HOTKEY_BACKEND"           envDefault:"auto"`
	CaptureBackend         string        `env:"CAPTURE_BACKEND"          envDefault:"auto"`
	CaptureTimeout         time.Duration `env:"CAPTURE_TIMEOUT"          envDefault:"500ms"`
	RateLimitMaxWait       time.Duration `env:"RATE_LIMIT_MAX_WAIT"      envDefault:"5s"`
	TriggerDebounce        time.Duration `env:"TRIGGER_DEBOUNCE"         envDefault:"1s"`
	Workers                int           `env:"WORKERS"                  envDefault:"4"`
	DetectLanguage         bool          `env:"DETECT_LANGUAGE"          envDefault:"true"`
	EnableFileLogging      bool          `env:"ENABLE_FILE_LOGGING"      envDefault:"false"`
	LogLevel               string        `env:"LOG_LEVEL"                envDefault:"info"`
	HistoryEnabled         bool          `env:"HISTORY_ENABLED"          envDefault:"true"`
	HistoryPath            string        `env:"HISTORY_PATH"`
	Notifications          bool          `env:"NOTIFICATIONS"            envDefault:"true"`
	RedisURL               string        `env:"REDIS_URL"`
	CacheTTL               time.Duration `env:"CACHE_TTL"                envDefault:"24h"`
	ProvidersFile          string        `env:"PROVIDERS_FILE"`
}

type Config struct {
	Settings
	// Providers is rank-sorted.
	Providers []translate.ProviderConfig
	// ProvidersSource is the file the providers came from, or "" for the
	// built-in defaults.
	ProvidersSource string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use SWIFTLINGO_ENV as a path to a config file
	envPath := strings.TrimSpace(opts.EnvFileOverride)
	if envPath == "" {
		envPath = resolveEnvPath()
	}
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{}
	if err := env.Parse(&cfg.Settings); err != nil {
		return nil, &translate.ConfigError{Kind: translate.ConfigInvalid, Detail: err.Error()}
	}
	cfg.SourceLanguage = translate.NormalizeLanguage(cfg.SourceLanguage)
	cfg.TargetLanguage = translate.NormalizeLanguage(cfg.TargetLanguage)

	path := strings.TrimSpace(opts.ProvidersFileOverride)
	if path == "" {
		path = cfg.ProvidersFile
	}
	explicit := path != ""
	if !explicit {
		path = DefaultProvidersPath(getenv)
	}

	providers, err := readProvidersFile(path, getenv)
	switch {
	case err == nil:
		cfg.ProvidersSource = path
	case os.IsNotExist(err) && !explicit:
		providers = DefaultProviders(getenv)
	default:
		return nil, &translate.ConfigError{Kind: translate.ConfigInvalid, Detail: fmt.Sprintf("providers file %s: %v", path, err)}
	}
	cfg.Providers = translate.SortByRank(providers)

	if err := Validate(cfg, opts.KnownKind); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Snapshot returns an immutable, rank-sorted copy of the provider configs.
func (c *Config) Snapshot() []translate.ProviderConfig {
	return translate.SortByRank(c.Providers)
}

var languagePattern = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,4})?$`)

// ValidLanguage reports whether code looks like an ISO 639 code with an
// optional region or script suffix ("en", "pt-br", "zh-hans").
func ValidLanguage(code string) bool {
	return languagePattern.MatchString(translate.NormalizeLanguage(code))
}

// Validate checks everything that must be known before the first run.
func Validate(cfg *Config, knownKind func(string) bool) error {
	if src := cfg.SourceLanguage; src != translate.AutoLanguage && !ValidLanguage(src) {
		return &translate.ConfigError{Kind: translate.ConfigInvalidLanguage, Detail: fmt.Sprintf("source %q", src)}
	}
	if !ValidLanguage(cfg.TargetLanguage) {
		return &translate.ConfigError{Kind: translate.ConfigInvalidLanguage, Detail: fmt.Sprintf("target %q", cfg.TargetLanguage)}
	}
	if knownKind != nil {
		for _, p := range cfg.Providers {
			if !knownKind(p.Kind) {
				return &translate.ConfigError{Kind: translate.ConfigUnknownKind, Detail: fmt.Sprintf("%q (provider %q)", p.Kind, p.ID)}
			}
		}
	}
	if cfg.Workers < 1 {
		return &translate.ConfigError{Kind: translate.ConfigInvalid, Detail: "WORKERS must be at least 1"}
	}
	return translate.ValidateConfigs(cfg.Providers)
}

// DefaultProvidersPath is $XDG_CONFIG_HOME/swiftlingo/providers.yaml.
func DefaultProvidersPath(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "swiftlingo", "providers.yaml")
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}
