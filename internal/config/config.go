// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	// AllowedOrigins are websocket origin patterns. Empty means same-origin
	// only.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %d", c.Port)
	}
	switch c.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("APP_ENV must be development, production or test, got %q", c.Environment)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}
