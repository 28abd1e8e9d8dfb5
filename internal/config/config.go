package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	RegistryFile             string `mapstructure:"REGISTRY_FILE"`
	StructureDefinitionsFile string `mapstructure:"STRUCTURE_DEFINITIONS_FILE"`

	UseAccessIndex   bool     `mapstructure:"USE_ACCESS_INDEX"`
	AccessIndexCodes []string `mapstructure:"ACCESS_INDEX_CODES"`
	AccessSystems    []string `mapstructure:"ACCESS_SYSTEMS"`
	NativeDateFields []string `mapstructure:"NATIVE_DATE_FIELDS"`

	MongoURL      string        `mapstructure:"MONGO_URL"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`
	MongoTimeout  time.Duration `mapstructure:"MONGO_TIMEOUT"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxBodySize    string        `mapstructure:"MAX_BODY_SIZE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"REGISTRY_FILE", "STRUCTURE_DEFINITIONS_FILE",
	"USE_ACCESS_INDEX", "ACCESS_INDEX_CODES", "ACCESS_SYSTEMS", "NATIVE_DATE_FIELDS",
	"MONGO_URL", "MONGO_DATABASE", "MONGO_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "MAX_BODY_SIZE", "CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("USE_ACCESS_INDEX", false)
	v.SetDefault("NATIVE_DATE_FIELDS", "*.meta.lastUpdated,AuditEvent.recorded")
	v.SetDefault("MONGO_DATABASE", "fhir")
	v.SetDefault("MONGO_TIMEOUT", "10s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MAX_BODY_SIZE", "1M")
	v.SetDefault("CORS_ORIGINS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AccessIndexCodes = splitList(cfg.AccessIndexCodes)
	cfg.AccessSystems = splitList(cfg.AccessSystems)
	cfg.NativeDateFields = splitList(cfg.NativeDateFields)
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	return cfg, nil
}

// splitList trims entries and splits any that still carry commas, which
// happens when a list arrives as one string from a .env file.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SearchEnabled reports whether a document store is configured.
func (c *Config) SearchEnabled() bool {
	return c.MongoURL != ""
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
}

// AccessIndex returns the predicate deciding which security codes have a
// precomputed access flag, or nil when the shortcut is disabled.
func (c *Config) AccessIndex() func(code string) bool {
	if !c.UseAccessIndex {
		return nil
	}
	codes := make(map[string]struct{}, len(c.AccessIndexCodes))
	for _, code := range c.AccessIndexCodes {
		codes[code] = struct{}{}
	}
	return func(code string) bool {
		_, ok := codes[code]
		return ok
	}
}

// Validate checks that the configuration is usable before the server or
// CLI starts.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	if c.UseAccessIndex && len(c.AccessIndexCodes) == 0 {
		return fmt.Errorf("ACCESS_INDEX_CODES is required when USE_ACCESS_INDEX is true")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	}
	if c.MongoURL != "" && strings.TrimSpace(c.MongoDatabase) == "" {
		return fmt.Errorf("MONGO_DATABASE is required when MONGO_URL is set")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}
