package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hestia.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HESTIA_PORT")
	setDuration(&cfg.Server.RequestTimeout, "HESTIA_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "HESTIA_SHUTDOWN_TIMEOUT")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HESTIA_REDIS_POOL_SIZE")
	setString(&cfg.Platform.BaseURL, "HESTIA_PLATFORM_URL")
	setString(&cfg.Platform.OwnerToken, "HESTIA_OWNER_TOKEN")
	setString(&cfg.OAuth.TokenURL, "HESTIA_OAUTH_TOKEN_URL")
	setString(&cfg.OAuth.ClientID, "HESTIA_OAUTH_CLIENT_ID")
	setString(&cfg.OAuth.ClientSecret, "HESTIA_OAUTH_CLIENT_SECRET")
	setString(&cfg.Logging.Level, "HESTIA_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HESTIA_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HESTIA_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "HESTIA_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HESTIA_BREAKER_TIMEOUT")
	setDuration(&cfg.Tasks.Timeout, "HESTIA_TASK_TIMEOUT")
	setInt64(&cfg.Replay.MaxSizeMB, "HESTIA_REPLAY_MAX_SIZE_MB")
	setDuration(&cfg.Replay.TTL, "HESTIA_REPLAY_TTL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if cfg.Platform.BaseURL == "" {
		return errors.New("platform.base_url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Tasks.Timeout <= 0 {
		return errors.New("tasks.timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
