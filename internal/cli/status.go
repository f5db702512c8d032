package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/tripwatch/internal/config"
	"github.com/soyeahso/tripwatch/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tripwatch %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			fmt.Fprintf(out, "API:     %s\n", cfg.API.BaseURL)
			fmt.Fprintf(out, "Live:    enabled=%v transport=%s heartbeat=%ds poll=%ds retries=%d\n",
				cfg.Live.IsEnabled(), cfg.Live.Transport,
				cfg.Live.HeartbeatInterval, cfg.Live.PollInterval, cfg.Live.MaxReconnectAttempts)

			storePath := cfg.Store.Path
			if storePath == "" {
				storePath = paths.PriceDB(cfg.Store.Driver)
			}
			if cfg.Store.Driver == "memory" {
				storePath = "(in memory)"
			}
			fmt.Fprintf(out, "Store:   %s %s\n", cfg.Store.Driver, storePath)

			if irc := cfg.Notify.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:     server=%s nick=%s channels=%s tls=%v\n",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:     (not configured)")
			}

			hookCount := len(cfg.Hooks.PriceUpdate) + len(cfg.Hooks.ConnectionState) +
				len(cfg.Hooks.SessionExpired) + len(cfg.Hooks.WatchStart) + len(cfg.Hooks.WatchStop)
			fmt.Fprintf(out, "Hooks:   %d\n", hookCount)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			if offline {
				return nil
			}

			client, err := newAPIClient(cfg)
			if err != nil {
				fmt.Fprintf(out, "\nSession: unavailable (%v)\n", err)
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			fmt.Fprintf(out, "\nSession: %s\n", newProbe(client, cfg).Probe(ctx))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip the session check")

	return cmd
}
