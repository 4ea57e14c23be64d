package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backoff is the polling policy for health checks.
type Backoff struct {
	MaxAttempts int
	Interval    time.Duration
	Jitter      time.Duration
}

// Config carries everything the coordinator needs. It is built once at
// startup and passed in explicitly; nothing reads the environment after Load.
type Config struct {
	DevMode bool

	// Base URL the API process listens on; health polling targets {APIURL}/health.
	APIURL string

	// Bind address for the supervisor's own control/status server.
	// Empty disables the control server.
	ControlAddress string

	RunDir string
	LogDir string

	UIAddress string
	UIPort    int

	Health Backoff

	// Liveness polling after a graceful stop signal, before SIGKILL.
	StopRetries  int
	StopInterval time.Duration
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		DevMode:        getenvBool("DEV_MODE", false),
		APIURL:         strings.TrimRight(getenv("API_URL", "http://api:8000"), "/"),
		ControlAddress: getenv("CONTROL_ADDRESS", ":9090"),
		RunDir:         getenv("RUN_DIR", ".run"),
		LogDir:         getenv("LOG_DIR", "logs"),
		UIAddress:      getenv("STREAMLIT_SERVER_ADDRESS", "0.0.0.0"),
		Health: Backoff{
			MaxAttempts: getenvInt("HEALTH_MAX_RETRIES", 30),
			Interval:    getenvDuration("HEALTH_INTERVAL", time.Second),
			Jitter:      getenvDuration("HEALTH_JITTER", 200*time.Millisecond),
		},
		StopRetries:  getenvInt("STOP_MAX_RETRIES", 10),
		StopInterval: getenvDuration("STOP_INTERVAL", 500*time.Millisecond),
	}

	cfg.UIPort = getenvInt("STREAMLIT_SERVER_PORT", 8501)
	if cfg.UIPort <= 0 || cfg.UIPort > 65535 {
		return nil, fmt.Errorf("invalid STREAMLIT_SERVER_PORT %d", cfg.UIPort)
	}
	if cfg.Health.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid HEALTH_MAX_RETRIES %d", cfg.Health.MaxAttempts)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
