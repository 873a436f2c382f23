package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config defines the runtime configuration for the inspection client.
type Config struct {
	StationURL        string // base URL of the inspection station, e.g. ws://localhost:8001
	ClientID          string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	CaptureTimeout    time.Duration
	MonitorAddr       string // local operator endpoint; empty disables it
	LogLevel          string
}

// DefaultConfig returns a config aligned with the station's default settings.
func DefaultConfig() Config {
	return Config{
		StationURL:        "ws://localhost:8001",
		ClientID:          "operator-1",
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    5 * time.Second,
		CaptureTimeout:    20 * time.Second,
		MonitorAddr:       ":8090",
		LogLevel:          "info",
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv returns DefaultConfig overridden by VRS_* environment variables.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.StationURL = getEnv("VRS_STATION_URL", cfg.StationURL)
	cfg.ClientID = getEnv("VRS_CLIENT_ID", cfg.ClientID)
	cfg.HeartbeatInterval = getEnvDuration("VRS_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.ReconnectDelay = getEnvDuration("VRS_RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.CaptureTimeout = getEnvDuration("VRS_CAPTURE_TIMEOUT", cfg.CaptureTimeout)
	cfg.MonitorAddr = getEnv("VRS_MONITOR_ADDR", cfg.MonitorAddr)
	cfg.LogLevel = getEnv("VRS_LOG_LEVEL", cfg.LogLevel)
	return cfg
}

// Endpoint returns the websocket endpoint for this client,
// shaped as {base}/ws/{clientId}.
func (c Config) Endpoint() (string, error) {
	u, err := url.Parse(c.StationURL)
	if err != nil {
		return "", fmt.Errorf("invalid station url %q: %w", c.StationURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("station url %q: scheme must be ws or wss", c.StationURL)
	}
	if c.ClientID == "" {
		return "", fmt.Errorf("client id must not be empty")
	}
	return u.JoinPath("ws", c.ClientID).String(), nil
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// Plain integers are read as seconds, matching the station's settings.
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
