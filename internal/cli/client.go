package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/auth"
	"github.com/soyeahso/tripwatch/internal/config"
	"github.com/soyeahso/tripwatch/internal/live"
	"github.com/soyeahso/tripwatch/internal/store"
)

func newAPIClient(c config.Config) (*api.Client, error) {
	return api.New(c.API.BaseURL, log,
		api.WithToken(c.API.Token),
		api.WithRequestTimeout(config.Seconds(c.API.TimeoutSeconds)),
	)
}

func newProbe(client *api.Client, c config.Config) *auth.HTTPProbe {
	return auth.NewHTTPProbe(client, c.API.StatusPath, log)
}

func liveConfig(c config.Config) live.Config {
	return live.Config{
		Enabled: c.Live.IsEnabled(),
		Intervals: live.Intervals{
			Heartbeat: config.Seconds(c.Live.HeartbeatInterval),
			Poll:      config.Seconds(c.Live.PollInterval),
		},
		ReconnectDelay:       config.Millis(c.Live.ReconnectDelayMs),
		MaxReconnectAttempts: c.Live.MaxReconnectAttempts,
	}
}

func newLiveTransport(kind string, client *api.Client, iv live.Intervals) (live.Transport, error) {
	switch kind {
	case "", "sse":
		return live.NewSSETransport(client, iv), nil
	case "websocket", "ws":
		return live.NewWebSocketTransport(client, iv), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want sse or websocket)", kind)
	}
}

func openPriceBook(ctx context.Context, c config.Config) (store.PriceBook, error) {
	path := c.Store.Path
	if path == "" {
		if c.Store.Driver != "memory" {
			if err := paths.EnsureDirs(); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		path = paths.PriceDB(c.Store.Driver)
	}
	return store.OpenPriceBook(ctx, c.Store.Driver, path, log)
}
