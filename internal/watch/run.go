package watch

import (
	"context"
	"fmt"

	"github.com/soyeahso/tripwatch/internal/hooks"
	"github.com/soyeahso/tripwatch/internal/live"
	"github.com/soyeahso/tripwatch/internal/notify"
	"golang.org/x/sync/errgroup"
)

// Channel is the part of *live.Channel that Run drives.
type Channel interface {
	SetCallbacks(cb live.Callbacks)
	Start()
	Close()
}

// Run wires ch to the router, starts it together with the notifiers and
// blocks until ctx is done or the session expires. notifiers may be nil.
func (r *Router) Run(ctx context.Context, ch Channel, notifiers *notify.Registry) error {
	g, gctx := errgroup.WithContext(ctx)

	expired := make(chan error, 1)
	cb := r.Callbacks(gctx)
	handleAuth := cb.OnAuthError
	cb.OnAuthError = func(err error) {
		handleAuth(err)
		select {
		case expired <- err:
		default:
		}
	}
	ch.SetCallbacks(cb)

	if notifiers != nil && notifiers.Count() > 0 {
		g.Go(func() error {
			notifiers.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		r.emit(gctx, hooks.EventWatchStart)
		ch.Start()
		defer ch.Close()

		select {
		case <-gctx.Done():
			return nil
		case err := <-expired:
			return fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
	})

	err := g.Wait()

	stopCtx := context.WithoutCancel(ctx)
	if notifiers != nil {
		notifiers.StopAll(stopCtx)
	}
	r.emit(stopCtx, hooks.EventWatchStop)
	if r.hooks != nil {
		r.hooks.Wait()
	}
	return err
}

func (r *Router) emit(ctx context.Context, event string) {
	if r.hooks != nil {
		r.hooks.Emit(ctx, event, nil)
	}
}
