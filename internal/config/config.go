package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	VM     VMConfig     `mapstructure:"vm"`
	MinIO  MinIOConfig  `mapstructure:"minio"`
	Valkey ValkeyConfig `mapstructure:"valkey"`
}

// DataConfig lists the datasets to serve. Files are local NetCDF paths, keys
// are object keys fetched from MinIO into CacheDir.
type DataConfig struct {
	Files    []string `mapstructure:"files"`
	Keys     []string `mapstructure:"keys"`
	CacheDir string   `mapstructure:"cache_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type VMConfig struct {
	InsertURL    string `mapstructure:"insert_url"`
	MetricPrefix string `mapstructure:"metric_prefix"`
	Concurrency  int    `mapstructure:"concurrency"`
	BatchSize    int    `mapstructure:"batch_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ValkeyConfig enables the result cache when Addr is set.
type ValkeyConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from an optional file and environment variables.
// An empty path searches for config.yaml in . and ./configs.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("data.files", []string{})
	v.SetDefault("data.keys", []string{})
	v.SetDefault("data.cache_dir", "./data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("vm.insert_url", "http://localhost:8428/write")
	v.SetDefault("vm.metric_prefix", "era5")
	v.SetDefault("vm.concurrency", 4)
	v.SetDefault("vm.batch_size", 500)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "era5")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("valkey.addr", "")
	v.SetDefault("valkey.ttl", time.Hour)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // OK if missing
	}

	// Environment variables: ERA5QUERY_VM_INSERT_URL → vm.insert_url
	v.SetEnvPrefix("ERA5QUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if u, err := url.Parse(c.VM.InsertURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("vm.insert_url must be an absolute URL, got %q", c.VM.InsertURL))
	}
	if c.VM.Concurrency <= 0 {
		errs = append(errs, "vm.concurrency must be positive")
	}
	if c.VM.BatchSize <= 0 {
		errs = append(errs, "vm.batch_size must be positive")
	}
	if len(c.Data.Keys) > 0 {
		if c.MinIO.Endpoint == "" {
			errs = append(errs, "minio.endpoint is required when data.keys is set")
		}
		if c.MinIO.Bucket == "" {
			errs = append(errs, "minio.bucket is required when data.keys is set")
		}
		if c.Data.CacheDir == "" {
			errs = append(errs, "data.cache_dir is required when data.keys is set")
		}
	}
	if c.Valkey.Addr != "" && c.Valkey.TTL < 0 {
		errs = append(errs, "valkey.ttl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
