package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultBaseURL    = "http://localhost:8000"
	DefaultStatusPath = "/api/auth/me"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        DefaultBaseURL,
			StatusPath:     DefaultStatusPath,
			TimeoutSeconds: 60,
		},
		Live: LiveConfig{
			Transport:            "sse",
			HeartbeatInterval:    30,
			PollInterval:         60,
			ReconnectDelayMs:     1000,
			MaxReconnectAttempts: 5,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Seconds converts a whole-second config value to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond config value to a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
