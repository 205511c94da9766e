// Package config provides hierarchical configuration loading for Hestia.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for a Hestia app process.
type Config struct {
	Server   Server   `yaml:"server"`
	Redis    Redis    `yaml:"redis"`
	Platform Platform `yaml:"platform"`
	OAuth    OAuth    `yaml:"oauth"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Tasks    Tasks    `yaml:"tasks"`
	Replay   Replay   `yaml:"replay"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Redis holds connection configuration for the context store.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// Platform holds the home-automation platform API configuration.
// OwnerToken is the app's static personal token, used only for
// registration confirmation callbacks, never for per-installation calls.
type Platform struct {
	BaseURL    string `yaml:"base_url"`
	OwnerToken string `yaml:"owner_token"`
}

// OAuth holds the static client credentials used for token refresh.
type OAuth struct {
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for outbound platform calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Tasks holds detached task runner configuration.
type Tasks struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Replay holds webhook replay guard configuration.
type Replay struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: Redis{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Platform: Platform{
			BaseURL: "https://api.smartthings.com/v1",
		},
		OAuth: OAuth{
			TokenURL: "https://auth-global.api.smartthings.com/oauth/token",
		},
		Logging: Logging{
			Level:   "info",
			Service: "hestia",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Tasks: Tasks{
			Timeout: 10 * time.Second,
		},
		Replay: Replay{
			MaxSizeMB: 8,
			TTL:       15 * time.Minute,
		},
	}
}
