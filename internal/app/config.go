package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/switchboard/internal/backend/claude"
	"github.com/florianilch/switchboard/internal/observability"
	"github.com/florianilch/switchboard/internal/proxy"
	"github.com/florianilch/switchboard/internal/tokenizer"
	"github.com/florianilch/switchboard/internal/tokensource"
)

// EnvPrefix prefixes every configuration environment variable. Nested keys
// are separated by a double underscore, e.g. SWITCHBOARD_SERVER__ADDRESS.
const EnvPrefix = "SWITCHBOARD_"

// BackendKind selects the model behind both protocols.
type BackendKind string

const (
	BackendKindClaude BackendKind = "claude"
	BackendKindLorem  BackendKind = "lorem"
)

// TokenizerEstimate counts lorem tokens without loading a BPE encoding.
const TokenizerEstimate = "estimate"

// TokenStorageType selects where the backend API key is kept.
type TokenStorageType string

const (
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Auth    AuthConfig    `koanf:"auth"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required,hostname_port"`
	APIKeys         []string      `koanf:"api_keys" validate:"dive,required"`
	MaxRequestBytes int64         `koanf:"max_request_bytes" validate:"gte=1024"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type BackendConfig struct {
	Kind      BackendKind `koanf:"kind" validate:"oneof=claude lorem"`
	Model     string      `koanf:"model" validate:"required"`
	BaseURL   string      `koanf:"base_url" validate:"omitempty,url"`
	MaxTokens int         `koanf:"max_tokens" validate:"gte=1"`
	Lorem     LoremConfig `koanf:"lorem"`
}

type LoremConfig struct {
	Delay time.Duration `koanf:"delay" validate:"gte=0"`
	// Tokenizer is a tiktoken encoding name, or "estimate" to count offline.
	Tokenizer string `koanf:"tokenizer" validate:"required"`
}

type AuthConfig struct {
	Storage         TokenStorageType `koanf:"storage" validate:"oneof=env file keyring"`
	EnvVar          string           `koanf:"env_var" validate:"required_if=Storage env"`
	File            string           `koanf:"file" validate:"required_if=Storage file"`
	KeyringService  string           `koanf:"keyring_service" validate:"required_if=Storage keyring"`
	KeyringUser     string           `koanf:"keyring_user" validate:"required_if=Storage keyring"`
	RefreshInterval time.Duration    `koanf:"refresh_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level    string               `koanf:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format   string               `koanf:"format" validate:"oneof=text json"`
	Export   observability.Export `koanf:"export" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Endpoint string               `koanf:"endpoint" validate:"omitempty,url"`
}

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	tokenFile := "switchboard/token"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, "switchboard", "token")
	}

	return map[string]any{
		"server.address":           "127.0.0.1:3000",
		"server.api_keys":          []string{},
		"server.max_request_bytes": int64(proxy.DefaultMaxRequestBytes),
		"server.read_timeout":      proxy.DefaultReadTimeout,
		"server.write_timeout":     time.Duration(0),
		"server.idle_timeout":      proxy.DefaultIdleTimeout,
		"server.shutdown_timeout":  10 * time.Second,

		"backend.kind":        string(BackendKindClaude),
		"backend.model":       "claude-sonnet-4-5",
		"backend.base_url":    "",
		"backend.max_tokens":  claude.DefaultMaxTokens,
		"backend.lorem.delay": 50 * time.Millisecond,

		"backend.lorem.tokenizer": tokenizer.DefaultEncoding,

		"auth.storage":          string(TokenStorageTypeEnv),
		"auth.env_var":          "ANTHROPIC_API_KEY",
		"auth.file":             tokenFile,
		"auth.keyring_service":  "switchboard",
		"auth.keyring_user":     "anthropic",
		"auth.refresh_interval": tokensource.DefaultRefreshInterval,

		"log.level":    "info",
		"log.format":   "text",
		"log.export":   string(observability.ExportNone),
		"log.endpoint": "",
	}
}

// LoadConfig layers defaults, the optional TOML file at path, SWITCHBOARD_*
// environment variables from environ and finally overrides, then validates
// the result. Overrides use flat keys such as "log.level".
func LoadConfig(path string, environ func() []string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if environ != nil {
		if err := k.Load(env.Provider(".", env.Opt{
			Prefix:        EnvPrefix,
			TransformFunc: envKey,
			EnvironFunc:   environ,
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment: %w", err)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SWITCHBOARD_SERVER__API_KEYS to server.api_keys. Comma
// separated values become lists.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "server.api_keys" {
		var keys []string
		for k := range strings.SplitSeq(value, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return key, keys
	}
	return key, value
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewTokenStore returns the configured API key store.
func (c AuthConfig) NewTokenStore() (tokensource.Store, error) {
	switch c.Storage {
	case TokenStorageTypeEnv:
		return tokensource.NewEnvStore(c.EnvVar), nil
	case TokenStorageTypeFile:
		return tokensource.NewFileStore(c.File), nil
	case TokenStorageTypeKeyring:
		return tokensource.NewKeyringStore(c.KeyringService, c.KeyringUser), nil
	default:
		return nil, fmt.Errorf("unsupported token storage %q", c.Storage)
	}
}
