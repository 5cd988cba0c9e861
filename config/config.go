// Package config loads service configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP / websocket surface
	HTTPAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	CacheTTL      time.Duration

	// Indicator registry
	RegistryPolicy     string // overwrite | reject
	IndicatorParams    string // "EMA:6/12/20,MACD:12/26/9"
	TooltipPlaceholder string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
// Files are loaded into the environment first (missing files are skipped);
// variables already set in the environment win.
func Load(files ...string) *Config {
	loadDotenv(files...)

	return &Config{
		HTTPAddr: getEnv("INDENGINE_HTTP_ADDR", ":9095"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bars.db"),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SEC", 300)) * time.Second,

		RegistryPolicy:     getEnv("REGISTRY_POLICY", "overwrite"),
		IndicatorParams:    getEnv("INDICATOR_PARAMS", ""),
		TooltipPlaceholder: getEnv("TOOLTIP_PLACEHOLDER", "--"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func loadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("[config] failed to load env file", "file", f, "error", err)
		}
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("[config] invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}
