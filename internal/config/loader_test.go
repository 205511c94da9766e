package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr localhost:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.Tasks.Timeout != 10*time.Second {
		t.Errorf("expected task timeout 10s, got %v", cfg.Tasks.Timeout)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
redis:
  addr: "redis.internal:6380"
  db: 2
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("expected redis addr redis.internal:6380, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("expected redis db 2, got %d", cfg.Redis.DB)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Platform.BaseURL != "https://api.smartthings.com/v1" {
		t.Errorf("expected default platform URL, got %s", cfg.Platform.BaseURL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("HESTIA_PORT", "7070")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("HESTIA_LOG_LEVEL", "warn")
	t.Setenv("HESTIA_TASK_TIMEOUT", "30s")
	t.Setenv("HESTIA_BREAKER_MAX_FAILURES", "3")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "cache:6379" {
		t.Errorf("expected redis addr cache:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Tasks.Timeout != 30*time.Second {
		t.Errorf("expected task timeout 30s, got %v", cfg.Tasks.Timeout)
	}
	if cfg.Breaker.MaxFailures != 3 {
		t.Errorf("expected breaker max failures 3, got %d", cfg.Breaker.MaxFailures)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Server.Port = "" }, true},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, true},
		{"missing platform url", func(c *Config) { c.Platform.BaseURL = "" }, true},
		{"zero task timeout", func(c *Config) { c.Tasks.Timeout = 0 }, true},
		{"breaker threshold too low", func(c *Config) { c.Breaker.MaxFailures = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
