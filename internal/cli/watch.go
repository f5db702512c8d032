package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/tripwatch/internal/config"
	"github.com/soyeahso/tripwatch/internal/hooks"
	"github.com/soyeahso/tripwatch/internal/live"
	"github.com/soyeahso/tripwatch/internal/notify"
	"github.com/soyeahso/tripwatch/internal/notify/irc"
	"github.com/soyeahso/tripwatch/internal/watch"
	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
)

func newWatchCmd() *cobra.Command {
	var (
		transport string
		restart   bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live price updates for your trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if restart {
				go autorestart.RestartOnChange()
			}
			if transport != "" {
				cfg.Live.Transport = transport
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			lc := liveConfig(cfg)
			lc.Enabled = true
			tr, err := newLiveTransport(cfg.Live.Transport, client, lc.Intervals)
			if err != nil {
				return err
			}

			book, err := openPriceBook(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening price book: %w", err)
			}
			defer book.Close()

			hookMgr := hooks.NewManager(log)
			registerHooks(hookMgr, cfg.Hooks)

			notifiers := notify.NewRegistry(log)
			notifiers.SuppressRepeats(config.Seconds(cfg.Notify.RepeatWindowSeconds))
			if cfg.Notify.IRC != nil {
				notifiers.Register(irc.New(*cfg.Notify.IRC, log))
			}

			opts := []watch.Option{
				watch.WithPriceBook(book),
				watch.WithHooks(hookMgr),
				watch.WithNotifiers(notifiers),
			}
			if !quiet {
				opts = append(opts, watch.WithOutput(cmd.OutOrStdout()))
			}
			router := watch.NewRouter(log, opts...)

			ch := live.NewChannel(tr, newProbe(client, cfg), lc, log)

			log.Info().
				Str("transport", cfg.Live.Transport).
				Str("store", cfg.Store.Driver).
				Int("hooks", len(hookMgr.Events())).
				Int("notifiers", notifiers.Count()).
				Msg("watching prices")

			err = router.Run(ctx, ch, notifiers)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "push transport (sse or websocket); overrides live.transport")
	cmd.Flags().BoolVar(&restart, "restart-on-rebuild", false, "re-exec when the tripwatch binary changes on disk")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print updates")

	return cmd
}

// registerHooks binds configured shell commands to their events.
func registerHooks(m *hooks.Manager, hc config.HooksConfig) {
	for event, entries := range map[string][]config.HookEntry{
		hooks.EventPriceUpdate:     hc.PriceUpdate,
		hooks.EventConnectionState: hc.ConnectionState,
		hooks.EventSessionExpired:  hc.SessionExpired,
		hooks.EventWatchStart:      hc.WatchStart,
		hooks.EventWatchStop:       hc.WatchStop,
	} {
		for i, e := range entries {
			hooks.Command{
				Name:    fmt.Sprintf("%s#%d", event, i+1),
				Run:     e.Command,
				Timeout: config.Millis(e.Timeout),
			}.Register(m, event)
		}
	}
}
