package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Addr() != ":8080" {
		t.Errorf("unexpected server port %d", cfg.Server.Port)
	}
	if cfg.VM.InsertURL != "http://localhost:8428/write" || cfg.VM.BatchSize != 500 {
		t.Errorf("unexpected vm config %+v", cfg.VM)
	}
	if cfg.Valkey.Addr != "" || cfg.Valkey.TTL != time.Hour {
		t.Errorf("unexpected valkey config %+v", cfg.Valkey)
	}
	if len(cfg.Data.Files) != 0 {
		t.Errorf("expected no dataset files, got %v", cfg.Data.Files)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ERA5QUERY_SERVER_PORT", "9090")
	t.Setenv("ERA5QUERY_VM_METRIC_PREFIX", "reanalysis")
	t.Setenv("ERA5QUERY_VALKEY_TTL", "15m")
	t.Setenv("ERA5QUERY_DATA_FILES", "t2m.nc,tp.nc")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.VM.MetricPrefix != "reanalysis" {
		t.Errorf("VM.MetricPrefix = %q, want reanalysis", cfg.VM.MetricPrefix)
	}
	if cfg.Valkey.TTL != 15*time.Minute {
		t.Errorf("Valkey.TTL = %v, want 15m", cfg.Valkey.TTL)
	}
	if len(cfg.Data.Files) != 2 || cfg.Data.Files[1] != "tp.nc" {
		t.Errorf("Data.Files = %v", cfg.Data.Files)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "era5query.yaml")
	content := `
data:
  keys:
    - era5/2m_temperature/2m_temperature_2020_09_to_2020_09.nc
minio:
  endpoint: localhost:9000
  bucket: reanalysis
log:
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Data.Keys) != 1 || cfg.MinIO.Bucket != "reanalysis" || cfg.Log.Format != "text" {
		t.Errorf("unexpected config %+v", cfg)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Log:    LogConfig{Level: "info", Format: "json"},
			Server: ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
			VM:     VMConfig{InsertURL: "http://localhost:8428/write", Concurrency: 1, BatchSize: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative vm url", func(c *Config) { c.VM.InsertURL = "/write" }, "vm.insert_url"},
		{"zero batch", func(c *Config) { c.VM.BatchSize = 0 }, "vm.batch_size"},
		{"keys without minio", func(c *Config) { c.Data.Keys = []string{"a.nc"} }, "minio.endpoint"},
		{"negative ttl", func(c *Config) { c.Valkey = ValkeyConfig{Addr: "localhost:6379", TTL: -time.Second} }, "valkey.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}
