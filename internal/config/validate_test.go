package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(issues []ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Path
	}
	return out
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "api.baseUrl"},
		{"negative timeout", func(c *Config) { c.API.TimeoutSeconds = -1 }, "api.timeoutSeconds"},
		{"bad transport", func(c *Config) { c.Live.Transport = "longpoll" }, "live.transport"},
		{"negative poll", func(c *Config) { c.Live.PollInterval = -5 }, "live.pollInterval"},
		{"negative attempts", func(c *Config) { c.Live.MaxReconnectAttempts = -1 }, "live.maxReconnectAttempts"},
		{"too many attempts", func(c *Config) { c.Live.MaxReconnectAttempts = 64 }, "live.maxReconnectAttempts"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
		{"hook without command", func(c *Config) {
			c.Hooks.SessionExpired = []HookEntry{{Timeout: 10}}
		}, "hooks.sessionExpired[0].command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Equal(t, []string{tt.path}, paths(Validate(&cfg)))
		})
	}
}

func TestValidate_ValidTransports(t *testing.T) {
	for _, tr := range []string{"sse", "websocket"} {
		cfg := Defaults()
		cfg.Live.Transport = tr
		assert.Empty(t, Validate(&cfg), tr)
	}
}

func TestValidate_IRC(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{Port: 70000, SASL: true}

	assert.ElementsMatch(t, []string{
		"notify.irc.server",
		"notify.irc.nick",
		"notify.irc.port",
		"notify.irc.channels",
		"notify.irc.sasl",
	}, paths(Validate(&cfg)))

	cfg.Notify.IRC = &IRCConfig{Server: "irc.libera.chat", Nick: "tw", Channels: []string{"#deals"}, Password: "pw", SASL: true}
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Live.Transport = "x"
	cfg.Store.Driver = "y"
	require.Len(t, Validate(&cfg), 2)
}

func TestValidationIssueString(t *testing.T) {
	is := ValidationIssue{Path: "live.transport", Message: "bad"}
	assert.Equal(t, "live.transport: bad", is.String())
}
