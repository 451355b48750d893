// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Config represents the complete configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server" yaml:"server"`
	Provider  string                    `mapstructure:"provider" yaml:"provider"` // active provider name
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Database  DatabaseConfig            `mapstructure:"database" yaml:"database"`
	Cache     CacheConfig               `mapstructure:"cache" yaml:"cache"`
	Migration MigrationConfig           `mapstructure:"migration" yaml:"migration"`
	Ingest    IngestConfig              `mapstructure:"ingest" yaml:"ingest"`
	Logging   LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProviderConfig describes one embedding backend. The map key under
// "providers" is the name used by the "provider" setting; Type defaults to
// that key, so custom names only need it when they alias a builtin type.
type ProviderConfig struct {
	Type         string        `mapstructure:"type" yaml:"type"`                   // ollama, openai
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`           // backend URL; empty = provider default
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`             // bearer credential
	DefaultModel string        `mapstructure:"default_model" yaml:"default_model"` // model used when requests name none
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`             // per-call timeout; 0 = 5s
}

// RuntimeConfig converts a config entry into the provider package's config.
func (p ProviderConfig) RuntimeConfig() provider.Config {
	return provider.Config{
		Type:         types.ProviderType(p.Type),
		BaseURL:      p.Endpoint,
		APIKey:       p.APIKey,
		DefaultModel: p.DefaultModel,
		Timeout:      p.Timeout,
	}
}

// DatabaseConfig contains storage configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // SQLite file path
}

// CacheConfig contains cache configuration. TTLs accept duration strings
// ("5m", "1h") in the config file.
type CacheConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxSize           int           `mapstructure:"max_size" yaml:"max_size"`
	EmbeddingTTL      time.Duration `mapstructure:"embedding_ttl" yaml:"embedding_ttl"`
	SearchTTL         time.Duration `mapstructure:"search_ttl" yaml:"search_ttl"`
	ModelsTTL         time.Duration `mapstructure:"models_ttl" yaml:"models_ttl"`
	ProviderStatusTTL time.Duration `mapstructure:"provider_status_ttl" yaml:"provider_status_ttl"`
}

// MigrationConfig contains model migration configuration.
type MigrationConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`       // parallel re-embedding workers
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"` // records per batch
}

// IngestConfig contains directory ingestion configuration.
type IngestConfig struct {
	Include     []string `mapstructure:"include" yaml:"include"`             // glob patterns to include
	Exclude     []string `mapstructure:"exclude" yaml:"exclude"`             // glob patterns to exclude
	MaxFileSize string   `mapstructure:"max_file_size" yaml:"max_file_size"` // e.g., "1MB"
	BatchSize   int      `mapstructure:"batch_size" yaml:"batch_size"`       // files per embedding batch
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // one of debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// DefaultConfig returns the built-in defaults, used when no config file
// exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Provider: "ollama",
		Providers: map[string]ProviderConfig{
			"ollama": {
				Type:     "ollama",
				Endpoint: "http://localhost:11434",
			},
			"openai": {
				Type: "openai",
			},
		},
		Database: DatabaseConfig{
			Path: "ees.db",
		},
		Cache: CacheConfig{
			Enabled:           true,
			MaxSize:           1000,
			EmbeddingTTL:      time.Hour,
			SearchTTL:         5 * time.Minute,
			ModelsTTL:         24 * time.Hour,
			ProviderStatusTTL: 30 * time.Second,
		},
		Migration: MigrationConfig{
			Workers:   4,
			BatchSize: 100,
		},
		Ingest: IngestConfig{
			Include: []string{
				"**/*.md", "**/*.txt", "**/*.rst", "**/*.adoc",
				"**/*.html", "**/*.htm",
				"**/*.go", "**/*.py", "**/*.js", "**/*.ts",
				"**/*.java", "**/*.rs", "**/*.rb",
				"**/*.yaml", "**/*.yml", "**/*.toml", "**/*.json",
			},
			Exclude: []string{
				"**/vendor/**", "**/node_modules/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/target/**",
				"**/*.min.js", "**/package-lock.json", "**/yarn.lock",
				"**/go.sum",
			},
			MaxFileSize: "1MB",
			BatchSize:   32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfigName is the config file viper searches for when no explicit
// path is given.
const DefaultConfigName = "ees"

// DefaultConfigPath returns the path config init writes to.
func DefaultConfigPath() string {
	return DefaultConfigName + ".yaml"
}

// Load loads configuration from file and environment, falling back to
// defaults. An empty path searches the working directory and
// ~/.config/ees for ees.yaml; an explicit path must exist. Environment
// variables use the EES_ prefix with dots replaced by underscores
// (EES_SERVER_PORT overrides server.port).
func Load(path string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	v := viper.New()
	v.SetEnvPrefix("EES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register defaults so environment overrides bind even without a file.
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("provider", cfg.Provider)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.max_size", cfg.Cache.MaxSize)
	v.SetDefault("migration.workers", cfg.Migration.Workers)
	v.SetDefault("migration.batch_size", cfg.Migration.BatchSize)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ees"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			warnings = append(warnings, "no config file found, using defaults")
		} else {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
		warnings = append(warnings, "no active provider set, using ollama")
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if _, ok := cfg.Providers[cfg.Provider]; !ok {
		cfg.Providers[cfg.Provider] = ProviderConfig{Type: cfg.Provider}
		warnings = append(warnings, fmt.Sprintf("no providers entry for %q, assuming defaults", cfg.Provider))
	}
	for name, pc := range cfg.Providers {
		if pc.Type == "" {
			pc.Type = name
			cfg.Providers[name] = pc
		}
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "ees.db"
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.EmbeddingTTL == 0 {
		cfg.Cache.EmbeddingTTL = time.Hour
	}
	if cfg.Cache.SearchTTL == 0 {
		cfg.Cache.SearchTTL = 5 * time.Minute
	}
	if cfg.Cache.ModelsTTL == 0 {
		cfg.Cache.ModelsTTL = 24 * time.Hour
	}
	if cfg.Cache.ProviderStatusTTL == 0 {
		cfg.Cache.ProviderStatusTTL = 30 * time.Second
	}
	if cfg.Migration.Workers == 0 {
		cfg.Migration.Workers = 4
	}
	if cfg.Migration.BatchSize == 0 {
		cfg.Migration.BatchSize = 100
	}
	if cfg.Ingest.MaxFileSize == "" {
		cfg.Ingest.MaxFileSize = "1MB"
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}

	return cfg, warnings, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("provider", cfg.Provider)
	v.Set("providers", cfg.Providers)
	v.Set("database", cfg.Database)
	v.Set("cache", cfg.Cache)
	v.Set("migration", cfg.Migration)
	v.Set("ingest", cfg.Ingest)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate returns every problem found in cfg, or nil when it is usable.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", cfg.Server.Port))
	}

	if _, ok := cfg.Providers[cfg.Provider]; !ok {
		errs = append(errs, fmt.Errorf("active provider %q has no providers entry", cfg.Provider))
	}

	validProviderTypes := map[string]bool{
		"ollama": true, "openai": true,
	}
	for name, pc := range cfg.Providers {
		if !validProviderTypes[pc.Type] {
			errs = append(errs, fmt.Errorf("provider %q: invalid type: %s", name, pc.Type))
		}
		if pc.Timeout < 0 {
			errs = append(errs, fmt.Errorf("provider %q: negative timeout", name))
		}
	}

	if cfg.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database path is empty"))
	}

	if cfg.Cache.Enabled && cfg.Cache.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("invalid cache max_size: %d", cfg.Cache.MaxSize))
	}

	if cfg.Migration.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("invalid migration batch_size: %d", cfg.Migration.BatchSize))
	}
	if cfg.Migration.Workers < 1 {
		errs = append(errs, fmt.Errorf("invalid migration workers: %d", cfg.Migration.Workers))
	}

	if _, err := ParseSize(cfg.Ingest.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("invalid ingest max_file_size: %w", err))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", cfg.Logging.Level))
	}
	validLogFormats := map[string]bool{
		"text": true, "json": true, "": true,
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid log format: %s (valid: text, json)", cfg.Logging.Format))
	}

	return errs
}

// ParseSize parses a human size string such as "512KB" or "1MB" into bytes.
// A bare number is taken as bytes.
func ParseSize(s string) (int64, error) {
	str := strings.TrimSpace(strings.ToUpper(s))
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(str, "GB"):
		multiplier = 1 << 30
		str = strings.TrimSuffix(str, "GB")
	case strings.HasSuffix(str, "MB"):
		multiplier = 1 << 20
		str = strings.TrimSuffix(str, "MB")
	case strings.HasSuffix(str, "KB"):
		multiplier = 1 << 10
		str = strings.TrimSuffix(str, "KB")
	case strings.HasSuffix(str, "B"):
		str = strings.TrimSuffix(str, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return n * multiplier, nil
}

// Redacted returns a deep copy with credentials masked, for printing.
func (c *Config) Redacted() *Config {
	out := *c

	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, pc := range c.Providers {
		if pc.APIKey != "" {
			pc.APIKey = "[redacted]"
		}
		out.Providers[name] = pc
	}
	if c.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	if c.Ingest.Include != nil {
		out.Ingest.Include = append([]string(nil), c.Ingest.Include...)
	}
	if c.Ingest.Exclude != nil {
		out.Ingest.Exclude = append([]string(nil), c.Ingest.Exclude...)
	}

	return &out
}
