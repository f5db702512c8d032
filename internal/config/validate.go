package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

func oneOf(issues []ValidationIssue, path, value string, valid []string) []ValidationIssue {
	if value != "" && !slices.Contains(valid, value) {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
		})
	}
	return issues
}

func nonNegative(issues []ValidationIssue, path string, n int) []ValidationIssue {
	if n < 0 {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must not be negative, got %d", n),
		})
	}
	return issues
}

// MaxReconnectAttempts bounds live.maxReconnectAttempts. The last delay
// is reconnectDelayMs * 2^(n-1), so 20 already waits days at a 1s base.
const MaxReconnectAttempts = 20

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "api.baseUrl",
			Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.API.BaseURL),
		})
	}
	issues = nonNegative(issues, "api.timeoutSeconds", cfg.API.TimeoutSeconds)

	issues = oneOf(issues, "live.transport", cfg.Live.Transport, []string{"sse", "websocket"})
	issues = nonNegative(issues, "live.heartbeatInterval", cfg.Live.HeartbeatInterval)
	issues = nonNegative(issues, "live.pollInterval", cfg.Live.PollInterval)
	issues = nonNegative(issues, "live.reconnectDelayMs", cfg.Live.ReconnectDelayMs)
	issues = nonNegative(issues, "live.maxReconnectAttempts", cfg.Live.MaxReconnectAttempts)
	if cfg.Live.MaxReconnectAttempts > MaxReconnectAttempts {
		issues = append(issues, ValidationIssue{
			Path:    "live.maxReconnectAttempts",
			Message: fmt.Sprintf("must be at most %d, got %d", MaxReconnectAttempts, cfg.Live.MaxReconnectAttempts),
		})
	}

	issues = oneOf(issues, "store.driver", cfg.Store.Driver, []string{"sqlite", "bolt", "memory"})

	issues = oneOf(issues, "logging.level", cfg.Logging.Level,
		[]string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	issues = oneOf(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	hookLists := map[string][]HookEntry{
		"hooks.priceUpdate":     cfg.Hooks.PriceUpdate,
		"hooks.connectionState": cfg.Hooks.ConnectionState,
		"hooks.sessionExpired":  cfg.Hooks.SessionExpired,
		"hooks.watchStart":      cfg.Hooks.WatchStart,
		"hooks.watchStop":       cfg.Hooks.WatchStop,
	}
	for _, path := range slices.Sorted(maps.Keys(hookLists)) {
		for i, h := range hookLists[path] {
			if h.Command == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].command", path, i),
					Message: "command is required",
				})
			}
			issues = nonNegative(issues, fmt.Sprintf("%s[%d].timeout", path, i), h.Timeout)
		}
	}

	issues = nonNegative(issues, "notify.repeatWindowSeconds", cfg.Notify.RepeatWindowSeconds)

	if irc := cfg.Notify.IRC; irc != nil {
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{Path: "notify.irc.server", Message: "server is required"})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{Path: "notify.irc.nick", Message: "nick is required"})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if len(irc.Channels) == 0 {
			issues = append(issues, ValidationIssue{Path: "notify.irc.channels", Message: "at least one channel is required"})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{Path: "notify.irc.sasl", Message: "SASL requires a password to be set"})
		}
	}

	return issues
}
