package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CascadeWorkers int
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:          fallback(os.Getenv("PORT"), "8080"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:     fallback(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
	}

	if db := strings.TrimSpace(os.Getenv("REDIS_DB")); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("REDIS_DB must be a non-negative integer, got %q", db)
		}
		cfg.RedisDB = n
	}

	workers := fallback(os.Getenv("CASCADE_WORKERS"), "8")
	if n, err := strconv.Atoi(workers); err == nil && n > 0 {
		cfg.CascadeWorkers = n
	} else {
		cfg.CascadeWorkers = 8
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}
