// Package watch connects the live price channel to its consumers: the price
// book, event hooks, notifiers and the terminal.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/hooks"
	"github.com/soyeahso/tripwatch/internal/live"
	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/soyeahso/tripwatch/internal/notify"
	"github.com/soyeahso/tripwatch/internal/store"
)

// Broadcaster fans a price update out to notifiers. *notify.Registry
// implements it.
type Broadcaster interface {
	Broadcast(ctx context.Context, u domain.PriceUpdate) error
}

// Router routes channel events to consumers. Any consumer may be nil.
type Router struct {
	book      store.PriceBook
	hooks     *hooks.Manager
	notifiers Broadcaster
	out       io.Writer
	onExpired func(error)
	log       *logging.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithPriceBook records every update.
func WithPriceBook(b store.PriceBook) Option { return func(r *Router) { r.book = b } }

// WithHooks emits hook events.
func WithHooks(m *hooks.Manager) Option { return func(r *Router) { r.hooks = m } }

// WithNotifiers broadcasts updates.
func WithNotifiers(b Broadcaster) Option { return func(r *Router) { r.notifiers = b } }

// WithOutput prints a line per update to w.
func WithOutput(w io.Writer) Option { return func(r *Router) { r.out = w } }

// WithExpiredHandler is called once the session has expired.
func WithExpiredHandler(fn func(error)) Option { return func(r *Router) { r.onExpired = fn } }

// NewRouter creates a router.
func NewRouter(log *logging.Logger, opts ...Option) *Router {
	r := &Router{log: log.Sub("watch")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Callbacks returns channel callbacks bound to ctx.
func (r *Router) Callbacks(ctx context.Context) live.Callbacks {
	return live.Callbacks{
		OnPriceUpdate: func(u domain.PriceUpdate) { r.HandlePriceUpdate(ctx, u) },
		OnHeartbeat: func(hb domain.Heartbeat) {
			r.log.Debug().Str("timestamp", hb.Timestamp).Msg("heartbeat")
		},
		OnConnected: func(info domain.ConnectedInfo) {
			r.log.Info().Str("session", info.SessionID).Msg("price channel connected")
		},
		OnError: func(err error) {
			r.log.Warn().Err(err).Msg("price channel error")
		},
		OnAuthError:   func(err error) { r.HandleAuthError(ctx, err) },
		OnStateChange: func(s domain.ConnectionState) { r.HandleState(ctx, s) },
	}
}

// HandlePriceUpdate records, announces and forwards one update.
func (r *Router) HandlePriceUpdate(ctx context.Context, u domain.PriceUpdate) {
	r.log.Info().
		Str("trip", u.TripID).
		Str("total", u.TotalPrice).
		Msg("price update")

	if r.book != nil {
		if err := r.book.Put(ctx, u); err != nil {
			r.log.Error().Err(err).Str("trip", u.TripID).Msg("failed to record price update")
		}
	}
	if r.out != nil {
		fmt.Fprintf(r.out, "%s  %s\n", timestamp(u.UpdatedAt), notify.FormatUpdate(u))
	}
	if r.hooks != nil {
		r.hooks.EmitAsync(ctx, hooks.EventPriceUpdate, updateData(u))
	}
	if r.notifiers != nil {
		if err := r.notifiers.Broadcast(ctx, u); err != nil {
			r.log.Warn().Err(err).Str("trip", u.TripID).Msg("notifier delivery failed")
		}
	}
}

// HandleState announces a connection state transition.
func (r *Router) HandleState(ctx context.Context, s domain.ConnectionState) {
	r.log.Debug().Str("state", s.String()).Msg("connection state")
	if r.hooks != nil {
		r.hooks.EmitAsync(ctx, hooks.EventConnectionState, map[string]any{"state": s.String()})
	}
}

// HandleAuthError runs session-expired hooks and then the expired handler.
func (r *Router) HandleAuthError(ctx context.Context, err error) {
	r.log.Warn().Err(err).Msg("session expired")
	if r.hooks != nil {
		r.hooks.Emit(ctx, hooks.EventSessionExpired, map[string]any{"error": err.Error()})
	}
	if r.onExpired != nil {
		r.onExpired(err)
	}
}

// ErrSessionExpired is returned by Run when the channel reported an expired
// session.
var ErrSessionExpired = errors.New("session expired, sign in again")

func updateData(u domain.PriceUpdate) map[string]any {
	data := map[string]any{
		"trip_id":   u.TripID,
		"trip_name": u.TripName,
	}
	for k, v := range map[string]string{
		"flight_price": u.FlightPrice,
		"hotel_price":  u.HotelPrice,
		"total_price":  u.TotalPrice,
	} {
		if v != "" {
			data[k] = v
		}
	}
	if !u.UpdatedAt.IsZero() {
		data["updated_at"] = u.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return data
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format(time.TimeOnly)
}
