// Package config loads service configuration from the environment and the
// optional allocation weights file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// StoreProfile pins the query strategy: "capable", "limited", or ""
	// to probe at startup.
	StoreProfile string
	// StoreTimeout is applied to every store call.
	StoreTimeout time.Duration
	// FetchCap bounds the superset fetch on the limited query path.
	FetchCap int

	// Allocation
	WeightsFile string
	Weights     map[string]int
	PerGroupCap int
	RetryPasses int

	// Pagination bounds for the list API.
	PageSizeMin int
	PageSizeMax int

	// HTTP
	Port      string
	JWTSecret string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. Allocation weights
// come from LABELQ_WEIGHTS ("group:weight,group:weight") or, when set, the
// YAML file named by LABELQ_WEIGHTS_FILE (the file wins).
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "labelq"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "backlog"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		StoreProfile: getEnv("LABELQ_STORE_PROFILE", ""),
		StoreTimeout: getDuration("LABELQ_STORE_TIMEOUT", 10*time.Second),
		FetchCap:     getInt("LABELQ_FETCH_CAP", 500),

		WeightsFile: getEnv("LABELQ_WEIGHTS_FILE", ""),
		PerGroupCap: getInt("LABELQ_PER_GROUP_CAP", 100),
		RetryPasses: getInt("LABELQ_RETRY_PASSES", 1),

		PageSizeMin: getInt("LABELQ_PAGE_SIZE_MIN", 1),
		PageSizeMax: getInt("LABELQ_PAGE_SIZE_MAX", 100),

		Port:      getEnv("LABELQ_PORT", "8585"),
		JWTSecret: getEnv("LABELQ_JWT_SECRET", ""),

		LogFile:  getEnv("LABELQ_LOG_FILE", "/tmp/labelq.log"),
		LogLevel: parseLogLevel(getEnv("LABELQ_LOG_LEVEL", "INFO")),
	}

	weights, err := ParseWeights(getEnv("LABELQ_WEIGHTS", ""))
	if err != nil {
		return cfg, err
	}
	if cfg.WeightsFile != "" {
		weights, err = LoadWeightsFile(cfg.WeightsFile)
		if err != nil {
			return cfg, err
		}
	}
	cfg.Weights = weights

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
