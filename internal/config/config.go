package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type RelayConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"LOG_PRETTY" envDefault:"false"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type ClientConfig struct {
	RelayURL   string `env:"RELAY_URL" envDefault:"ws://localhost:8080/ws"`
	PlayerName string `env:"PLAYER_NAME"`
	Grade      string `env:"GRADE" envDefault:"8"`
	DataPath   string `env:"DATA_PATH" envDefault:"mathquest.db"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"warn"`
	LogPretty  bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() bool {
	return godotenv.Load() == nil
}

func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()
	cfg := &RelayConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	loadDotEnv()
	cfg := &ClientConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
