package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SELENE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SELENE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL returns the Postgres connection string. Empty means the
// decision journal is disabled and the pipeline runs memory-only.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// OperatorAPIKey returns the bearer token protecting the operator API.
// Empty disables authentication.
func OperatorAPIKey() string {
	return os.Getenv("OPERATOR_API_KEY")
}

// DefaultMood returns the mood the pipeline boots with.
// Valid values: calm, balanced, punk. Defaults to "balanced".
func DefaultMood() string {
	m := os.Getenv("DEFAULT_MOOD")
	if m == "" {
		return "balanced"
	}
	return m
}

// DreamTimeout returns the simulation deadline per frame.
// Defaults to 3000ms if not set.
func DreamTimeout() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("DREAM_TIMEOUT_MS"))
	if err != nil || ms <= 0 {
		return 3000 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// BiasAuditInterval returns how often the background bias audit runs.
// Defaults to 30s if not set.
func BiasAuditInterval() time.Duration {
	secs, err := strconv.Atoi(os.Getenv("BIAS_AUDIT_INTERVAL_SECONDS"))
	if err != nil || secs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
