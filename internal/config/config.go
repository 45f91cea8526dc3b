// Package config loads package-index settings from an INI file and PYPI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "pypi.conf"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds the [server] section.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	DataDir     string `mapstructure:"data_dir"`
	Debug       bool   `mapstructure:"debug"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CacheConfig holds the [cache] section.
type CacheConfig struct {
	// MaxEntries bounds the metadata cache; zero is unbounded.
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Watch         bool          `mapstructure:"watch"`
	Workers       int           `mapstructure:"workers"`
}

// LogConfig holds the [log] section.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds the [metrics] section.
type MetricsConfig struct {
	Prometheus    bool          `mapstructure:"prometheus"`
	OTLPEndpoint  string        `mapstructure:"otlp_endpoint"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// envBindings maps configuration keys to their environment variables.
var envBindings = map[string]string{
	"server.host":            "PYPI_HOST",
	"server.port":            "PYPI_PORT",
	"server.data_dir":        "PYPI_DATA_DIR",
	"server.debug":           "PYPI_DEBUG",
	"server.max_file_size":   "PYPI_MAX_FILE_SIZE",
	"cache.max_entries":      "PYPI_CACHE_MAX_ENTRIES",
	"cache.sweep_interval":   "PYPI_CACHE_SWEEP_INTERVAL",
	"cache.watch":            "PYPI_CACHE_WATCH",
	"cache.workers":          "PYPI_CACHE_WORKERS",
	"log.level":              "PYPI_LOG_LEVEL",
	"log.format":             "PYPI_LOG_FORMAT",
	"log.file":               "PYPI_LOG_FILE",
	"metrics.prometheus":     "PYPI_METRICS_PROMETHEUS",
	"metrics.otlp_endpoint":  "PYPI_METRICS_OTLP_ENDPOINT",
	"metrics.flush_interval": "PYPI_METRICS_FLUSH_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./packages")
	v.SetDefault("server.debug", false)
	v.SetDefault("server.max_file_size", 100*1024*1024)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.sweep_interval", "0s")
	v.SetDefault("cache.watch", false)
	v.SetDefault("cache.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)
	v.SetDefault("metrics.prometheus", false)
	v.SetDefault("metrics.otlp_endpoint", "")
	v.SetDefault("metrics.flush_interval", "10s")
}

// Load reads path (DefaultFile when empty) if it exists, applies PYPI_*
// environment overrides, validates the result and makes the data directory
// absolute. A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("ini")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Server.Debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absData, err := filepath.Abs(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	cfg.Server.DataDir = absData

	return &cfg, nil
}

// Validate checks semantic constraints.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return newFieldError("server.port", "must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		return newFieldError("server.data_dir", "must not be empty")
	}
	if c.Server.MaxFileSize <= 0 {
		return newFieldError("server.max_file_size", "must be greater than 0")
	}
	if c.Cache.MaxEntries < 0 {
		return newFieldError("cache.max_entries", "must not be negative")
	}
	if c.Cache.SweepInterval < 0 {
		return newFieldError("cache.sweep_interval", "must not be negative")
	}
	if c.Cache.Workers < 0 {
		return newFieldError("cache.workers", "must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return newFieldError("log.level", "must be one of debug|info|warn|error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return newFieldError("log.format", "must be text or json")
	}
	if c.Log.MaxSize < 0 || c.Log.MaxBackups < 0 {
		return newFieldError("log.max_size", "rotation limits must not be negative")
	}
	return nil
}

// Sample is the annotated configuration written by WriteSample.
const Sample = `[server]
# Host to bind to
host = localhost

# Port to bind to
port = 8080

# Directory holding .whl and .tar.gz archives
data_dir = ./packages

# Enable debug logging
debug = false

# Maximum upload size in bytes (100MB)
max_file_size = 104857600

[cache]
# Maximum cached metadata entries, 0 for unbounded
max_entries = 0

# How often stale cache entries are dropped, e.g. 10m; 0 disables
sweep_interval = 0

# Evict cache entries as soon as archives are deleted
watch = false

[log]
# debug, info, warn or error
level = info

# text or json
format = text

# Optional log file, rotated by size
file =
max_size = 100
max_backups = 10
compress = true

[metrics]
# Serve Prometheus metrics on /metrics
prometheus = false

# OTLP gRPC endpoint, e.g. localhost:4317
otlp_endpoint =
flush_interval = 10s
`

// WriteSample writes Sample to path. It refuses to replace an existing file
// unless force is set.
func WriteSample(path string, force bool) error {
	if path == "" {
		path = DefaultFile
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Sample), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
