package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
//
// Environment variable names derive from the field names under the WSBIND
// prefix (WSBIND_SERVER_PORT, WSBIND_STORAGE_PATH, ...). Fields carry no
// envconfig name tags: a named tag doubles as an unprefixed fallback, so a
// tag like "PATH" would silently read the process's $PATH when the prefixed
// variable is unset.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Binding   BindingConfig   `yaml:"binding"`
	Token     TokenConfig     `yaml:"token"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// BindingConfig contains the binding engine policy knobs. The fingerprint
// tolerance and the failure ceiling are deliberately configuration rather
// than constants; the right defaults are a policy decision of the adopting
// system.
type BindingConfig struct {
	MaxWorkshopBindings   int           `yaml:"max_workshop_bindings" split_words:"true"`
	MaxValidationFailures int           `yaml:"max_validation_failures" split_words:"true"`
	FingerprintTolerance  int           `yaml:"fingerprint_tolerance" split_words:"true"`
	TokenTTL              time.Duration `yaml:"token_ttl" split_words:"true"`
	GatewayCacheTTL       time.Duration `yaml:"gateway_cache_ttl" split_words:"true"`
}

// TokenConfig contains token signing configuration
type TokenConfig struct {
	MasterKey  string `yaml:"master_key" split_words:"true"`
	KeyContext string `yaml:"key_context" split_words:"true"`
}

// GatewayConfig configures the business verification gateway client. When
// BaseURL is empty the engine runs against the static in-memory gateway,
// seeded from Static (license number -> status).
type GatewayConfig struct {
	BaseURL string            `yaml:"base_url" split_words:"true"`
	Timeout time.Duration     `yaml:"timeout"`
	Static  map[string]string `yaml:"static"`
}

// StorageConfig contains persistence configuration
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Load loads configuration from environment variables and an optional YAML
// file. Environment variables win over file values.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = *fileCfg
		}
	}

	if err := envconfig.Process("WSBIND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills remaining zero values after the file and environment
// passes. Defaults live here rather than in struct tags so that envconfig
// never overwrites file-provided values for unset variables.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Binding.MaxWorkshopBindings == 0 {
		cfg.Binding.MaxWorkshopBindings = 10
	}
	if cfg.Binding.MaxValidationFailures == 0 {
		cfg.Binding.MaxValidationFailures = 10
	}
	if cfg.Binding.FingerprintTolerance == 0 {
		cfg.Binding.FingerprintTolerance = 1
	}
	if cfg.Binding.TokenTTL == 0 {
		cfg.Binding.TokenTTL = 8760 * time.Hour
	}
	if cfg.Binding.GatewayCacheTTL == 0 {
		cfg.Binding.GatewayCacheTTL = 5 * time.Minute
	}
	if cfg.Token.KeyContext == "" {
		cfg.Token.KeyContext = "wsbind-license-token-v1"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/wsbind.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "logs/wsbind.log"
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 50
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 25
	}
}

// validate checks configuration consistency
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Binding.MaxWorkshopBindings < 1 {
		return fmt.Errorf("max_workshop_bindings must be at least 1, got %d", c.Binding.MaxWorkshopBindings)
	}
	if c.Binding.MaxValidationFailures < 1 {
		return fmt.Errorf("max_validation_failures must be at least 1, got %d", c.Binding.MaxValidationFailures)
	}
	if c.Binding.FingerprintTolerance < 0 {
		return fmt.Errorf("fingerprint_tolerance must not be negative, got %d", c.Binding.FingerprintTolerance)
	}
	if c.Token.MasterKey == "" {
		return fmt.Errorf("token master_key is required")
	}
	if len(c.Token.MasterKey) < 16 {
		return fmt.Errorf("token master_key must be at least 16 bytes, got %d", len(c.Token.MasterKey))
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("unsupported logging output: %s", c.Logging.Output)
	}
	return nil
}
