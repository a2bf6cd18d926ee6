package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds client configuration loaded from environment.
type Config struct {
	API      APIConfig
	Stream   StreamConfig
	Session  SessionConfig
	LogLevel string
}

// APIConfig holds REST endpoint settings.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StreamConfig holds websocket endpoint and keepalive settings.
type StreamConfig struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
}

// SessionConfig holds token persistence settings.
type SessionConfig struct {
	TokenFile string // empty disables on-disk persistence
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),
			Timeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 15)) * time.Second,
		},
		Stream: StreamConfig{
			URL:              getEnv("WS_URL", "ws://localhost:8000/ws"),
			ReconnectDelay:   time.Duration(getEnvInt("RECONNECT_DELAY_MS", 3000)) * time.Millisecond,
			HandshakeTimeout: time.Duration(getEnvInt("HANDSHAKE_TIMEOUT_SEC", 10)) * time.Second,
			PingInterval:     time.Duration(getEnvInt("PING_INTERVAL_SEC", 30)) * time.Second,
			PongWait:         time.Duration(getEnvInt("PONG_WAIT_SEC", 60)) * time.Second,
		},
		Session: SessionConfig{
			TokenFile: getEnv("TOKEN_FILE", defaultTokenFile()),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/pollstream/token"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
