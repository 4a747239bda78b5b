package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file name without extension
const FileName = "querylint"

// Cache backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config represents the querylint configuration
type Config struct {
	Schema  SchemaConfig  `mapstructure:"schema" yaml:"schema"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SchemaConfig locates the schema service
type SchemaConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Token   string        `mapstructure:"token" yaml:"token,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CacheConfig controls where fetched metadata is persisted
type CacheConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	MaxAge  time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// RedisConfig is used when the cache backend is redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig represents the metrics endpoint configuration
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Schema: SchemaConfig{Timeout: 10 * time.Second},
		Cache: CacheConfig{
			Backend: BackendFile,
			Dir:     DefaultCacheDir(),
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "querylint:",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultCacheDir returns the per-user directory for persisted metadata
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".querylint", "objectinfo")
	}
	return filepath.Join(dir, "querylint", "objectinfo")
}

// Load loads the configuration from querylint.yml or querylint.yaml in the
// current directory, falling back to the user config directory. An explicit
// path overrides the search.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	def := Default()
	v.SetDefault("schema.url", def.Schema.URL)
	v.SetDefault("schema.token", def.Schema.Token)
	v.SetDefault("schema.timeout", def.Schema.Timeout)
	v.SetDefault("cache.backend", def.Cache.Backend)
	v.SetDefault("cache.dir", def.Cache.Dir)
	v.SetDefault("cache.max_age", def.Cache.MaxAge)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.password", def.Redis.Password)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.prefix", def.Redis.Prefix)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("metrics.addr", def.Metrics.Addr)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "querylint"))
		}
	}

	// Enable environment variable support, e.g. QUERYLINT_SCHEMA_TOKEN
	v.SetEnvPrefix("QUERYLINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Save writes cfg as YAML to path
func Save(path string, cfg *Config) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold a token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Cache.Backend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got: %s", BackendFile, BackendRedis, cfg.Cache.Backend)
	}

	if cfg.Schema.URL != "" {
		u, err := url.Parse(cfg.Schema.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("schema.url must be an http or https URL, got: %s", cfg.Schema.URL)
		}
	}

	if cfg.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must not be negative, got: %s", cfg.Cache.MaxAge)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}

	return nil
}
