package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultStatusPath, cfg.API.StatusPath)
	assert.Equal(t, "sse", cfg.Live.Transport)
	assert.True(t, cfg.Live.IsEnabled())
	assert.Equal(t, 30, cfg.Live.HeartbeatInterval)
	assert.Equal(t, 60, cfg.Live.PollInterval)
	assert.Equal(t, 1000, cfg.Live.ReconnectDelayMs)
	assert.Equal(t, 5, cfg.Live.MaxReconnectAttempts)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Nil(t, cfg.Notify.IRC)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadValidYAML(t *testing.T) {
	t.Setenv("TW_IRC_PASS", "hunter2")
	path := writeConfig(t, `
api:
  baseUrl: https://trips.example.com
  token: abc
live:
  enabled: false
  transport: websocket
  pollInterval: 120
store:
  driver: memory
logging:
  level: debug
  consoleStyle: json
hooks:
  priceUpdate:
    - command: notify-send "$(jq -r .data.trip_name)"
      timeout: 5000
notify:
  irc:
    server: irc.libera.chat
    nick: twbot
    password: ${TW_IRC_PASS}
    channels: ["#deals"]
    useTLS: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://trips.example.com", cfg.API.BaseURL)
	assert.Equal(t, "abc", cfg.API.Token)
	assert.Equal(t, DefaultStatusPath, cfg.API.StatusPath)
	assert.False(t, cfg.Live.IsEnabled())
	assert.Equal(t, "websocket", cfg.Live.Transport)
	assert.Equal(t, 120, cfg.Live.PollInterval)
	assert.Equal(t, 30, cfg.Live.HeartbeatInterval)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	require.Len(t, cfg.Hooks.PriceUpdate, 1)
	assert.Equal(t, 5000, cfg.Hooks.PriceUpdate[0].Timeout)

	require.NotNil(t, cfg.Notify.IRC)
	assert.Equal(t, "hunter2", cfg.Notify.IRC.Password)
	assert.Equal(t, []string{"#deals"}, cfg.Notify.IRC.Channels)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "live: [unclosed"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRIPWATCH_API_URL", "https://env.example.com")
	t.Setenv("TRIPWATCH_API_TOKEN", "envtok")
	t.Setenv("TRIPWATCH_LIVE_TRANSPORT", "WebSocket")
	t.Setenv("TRIPWATCH_LIVE_ENABLED", "false")
	t.Setenv("TRIPWATCH_LOG_LEVEL", "DEBUG")

	cfg, err := Load(writeConfig(t, "api:\n  token: filetok\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "envtok", cfg.API.Token)
	assert.Equal(t, "websocket", cfg.Live.Transport)
	assert.False(t, cfg.Live.IsEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TW_SET", "value")
	assert.Equal(t, "value", expandEnvVars("${TW_SET}"))
	assert.Equal(t, "pre-value-post", expandEnvVars("pre-${TW_SET}-post"))
	assert.Equal(t, "${TW_DEFINITELY_UNSET}", expandEnvVars("${TW_DEFINITELY_UNSET}"))
	assert.Equal(t, "$TW_SET", expandEnvVars("$TW_SET"))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"live", "transport"}, "websocket")
	require.NoError(t, SaveRaw(path, raw))

	reloaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(reloaded, []string{"live", "transport"})
	assert.True(t, ok)
	assert.Equal(t, "websocket", val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "websocket", cfg.Live.Transport)
}

func TestDurations(t *testing.T) {
	assert.Equal(t, "30s", Seconds(30).String())
	assert.Equal(t, "1.5s", Millis(1500).String())
}
