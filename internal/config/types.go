package config

// Config is the root configuration for tripwatch.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Live    LiveConfig    `yaml:"live,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
}

// APIConfig locates the trip-tracking service.
type APIConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	Token          string `yaml:"token,omitempty"`      // optional bearer token; supports ${ENV_VAR}
	StatusPath     string `yaml:"statusPath,omitempty"` // session status endpoint probed on stream failure
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// LiveConfig controls the price-update push channel.
type LiveConfig struct {
	Enabled              *bool  `yaml:"enabled,omitempty"`   // defaults to true
	Transport            string `yaml:"transport,omitempty"` // "sse" | "websocket"
	HeartbeatInterval    int    `yaml:"heartbeatInterval,omitempty"` // seconds
	PollInterval         int    `yaml:"pollInterval,omitempty"`      // seconds
	ReconnectDelayMs     int    `yaml:"reconnectDelayMs,omitempty"`
	MaxReconnectAttempts int    `yaml:"maxReconnectAttempts,omitempty"`
}

// IsEnabled reports whether the push channel connects on start.
func (l LiveConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// StoreConfig selects where received prices are kept.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <home>/data/prices.db
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig maps events to shell commands.
type HooksConfig struct {
	PriceUpdate     []HookEntry `yaml:"priceUpdate,omitempty"`
	ConnectionState []HookEntry `yaml:"connectionState,omitempty"`
	SessionExpired  []HookEntry `yaml:"sessionExpired,omitempty"`
	WatchStart      []HookEntry `yaml:"watchStart,omitempty"`
	WatchStop       []HookEntry `yaml:"watchStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// NotifyConfig configures price alert notifiers.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
	// RepeatWindowSeconds suppresses an identical alert for a trip within
	// the window. Zero sends every update.
	RepeatWindowSeconds int `yaml:"repeatWindowSeconds,omitempty"`
}

// IRCConfig defines the IRC notifier.
type IRCConfig struct {
	Server    string   `yaml:"server"`
	Port      int      `yaml:"port,omitempty"`
	Nick      string   `yaml:"nick"`
	Password  string   `yaml:"password,omitempty"`
	Channels  []string `yaml:"channels"`
	UseTLS    bool     `yaml:"useTLS,omitempty"`
	SASL      bool     `yaml:"sasl,omitempty"`
	Multiline bool     `yaml:"multiline,omitempty"` // request IRCv3 draft/multiline
}
