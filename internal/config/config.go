package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config holds ambient service settings, populated from environment
// variables. Per-run choices (domain, run, variables) come from the CLI.
type Config struct {
	DataDir     string
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration

	// Optional run-completion events.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	httpTimeoutStr := envOrDefault("HTTP_TIMEOUT", "90s")
	httpTimeout, err := time.ParseDuration(httpTimeoutStr)
	if err != nil || httpTimeout <= 0 {
		return nil, errors.New("invalid HTTP_TIMEOUT")
	}

	cfg := &Config{
		DataDir:      envOrDefault("DATA_DIR", "data"),
		HTTPAddr:     os.Getenv("HTTP_ADDR"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "json"),
		HTTPTimeout:  httpTimeout,
		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "forecast-runs"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(value, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
