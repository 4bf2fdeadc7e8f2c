package config

import (
	"errors"
	"os"
	"time"
)

// ClientConfig configures the rollcalld daemon.
type ClientConfig struct {
	APIPort       string
	LocalDBPath   string
	RemoteURL     string
	DeviceID      string
	QRSecret      string
	SyncInterval  time.Duration
	ProbeInterval time.Duration
	LogLevel      string
}

// ServerConfig configures the rollcall-remote server.
type ServerConfig struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	PresenceTTL time.Duration
	LogLevel    string
}

// LoadClientConfig reads the daemon configuration from the environment.
func LoadClientConfig() (*ClientConfig, error) {
	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "30s"))
	if err != nil {
		return nil, errors.New("invalid SYNC_INTERVAL format")
	}
	probeInterval, err := time.ParseDuration(getEnv("PROBE_INTERVAL", "10s"))
	if err != nil {
		return nil, errors.New("invalid PROBE_INTERVAL format")
	}

	cfg := &ClientConfig{
		APIPort:       getEnv("API_PORT", "8090"),
		LocalDBPath:   getEnv("LOCAL_DB_PATH", "rollcall.db"),
		RemoteURL:     os.Getenv("REMOTE_URL"),
		DeviceID:      os.Getenv("DEVICE_ID"),
		QRSecret:      os.Getenv("QR_SECRET"),
		SyncInterval:  syncInterval,
		ProbeInterval: probeInterval,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.RemoteURL == "" {
		return nil, errors.New("REMOTE_URL is required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("DEVICE_ID is required")
	}
	if cfg.QRSecret == "" {
		return nil, errors.New("QR_SECRET is required")
	}

	return cfg, nil
}

// LoadServerConfig reads the remote server configuration from the
// environment.
func LoadServerConfig() (*ServerConfig, error) {
	presenceTTL, err := time.ParseDuration(getEnv("PRESENCE_TTL", "5m"))
	if err != nil {
		return nil, errors.New("invalid PRESENCE_TTL format")
	}

	cfg := &ServerConfig{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		PresenceTTL: presenceTTL,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
