// Package config loads settings for the portsweep API server.
//
// Values come from built-in defaults, an optional YAML file, a .env file and
// the process environment, in increasing order of precedence. Environment
// keys use the PORTSWEEP_ prefix with dots replaced by underscores, so
// server.api_key is read from PORTSWEEP_SERVER_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PORTSWEEP"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	APIKey     string `mapstructure:"api_key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig caps API requests per client IP within a fixed window.
type RateLimitConfig struct {
	Requests int64         `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ScanConfig holds the limits applied to scans requested over HTTP.
type ScanConfig struct {
	DefaultWorkers int           `mapstructure:"default_workers"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Loader reads configuration with viper.
type Loader struct {
	viper    *viper.Viper
	envFiles []string
}

// NewLoader creates a loader that reads the given .env files, if present,
// before consulting the environment.
func NewLoader(envFiles ...string) *Loader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &Loader{viper: viper.New(), envFiles: envFiles}
}

// Load builds the configuration. configFile may be empty.
func (l *Loader) Load(configFile string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	v := l.viper
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is shorthand for NewLoader().Load(configFile).
func Load(configFile string) (*Config, error) {
	return NewLoader().Load(configFile)
}

func (l *Loader) loadEnvFiles() error {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		// Existing environment variables win over .env entries.
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("scan.default_workers", 4)
	v.SetDefault("scan.max_workers", 1024)
	v.SetDefault("scan.connect_timeout", 2*time.Second)
	v.SetDefault("scan.lock_ttl", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return errors.New("server.api_key is required")
	}
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("ratelimit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Scan.MaxWorkers < 1 || c.Scan.MaxWorkers > 65535 {
		return fmt.Errorf("scan.max_workers must be within 1-65535, got %d", c.Scan.MaxWorkers)
	}
	if c.Scan.DefaultWorkers < 1 || c.Scan.DefaultWorkers > c.Scan.MaxWorkers {
		return fmt.Errorf("scan.default_workers must be within 1-%d, got %d", c.Scan.MaxWorkers, c.Scan.DefaultWorkers)
	}
	if c.Scan.ConnectTimeout < 0 {
		return fmt.Errorf("scan.connect_timeout must not be negative, got %s", c.Scan.ConnectTimeout)
	}
	if c.Scan.LockTTL <= 0 {
		return fmt.Errorf("scan.lock_ttl must be positive, got %s", c.Scan.LockTTL)
	}
	return nil
}
