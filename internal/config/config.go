// Package config содержит логику чтения конфигурации сервиса учёта АЗС.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса учёта АЗС.
type Config struct {
	RunAddress             string `env:"RUN_ADDRESS"`
	DatabaseURI            string `env:"DATABASE_URI"`
	AuthSecret             string `env:"AUTH_SECRET"`
	AlertWebhookAddress    string `env:"ALERT_WEBHOOK_ADDRESS"`
	VarianceAlertThreshold string `env:"VARIANCE_ALERT_THRESHOLD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envAlertAddress := cfg.AlertWebhookAddress
	envThreshold := cfg.VarianceAlertThreshold

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for auth cookie signing")
	flag.StringVar(&cfg.AlertWebhookAddress, "w", "", "variance alert webhook address")
	flag.StringVar(&cfg.VarianceAlertThreshold, "t", "500", "absolute short/excess that triggers an alert")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAlertAddress != "" {
		cfg.AlertWebhookAddress = envAlertAddress
	}
	if envThreshold != "" {
		cfg.VarianceAlertThreshold = envThreshold
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.VarianceAlertThreshold == "" {
		cfg.VarianceAlertThreshold = "500"
	}

	return cfg, nil
}
