// Package notify fans price updates out to external notifiers such as IRC.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
)

// Notifier delivers price alerts somewhere.
type Notifier interface {
	Name() string
	// Start connects and blocks until ctx is done or the connection fails.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Notify(ctx context.Context, u domain.PriceUpdate) error
}

// Status describes a notifier at runtime.
type Status struct {
	Name      string
	Connected bool
	LastError string
}

// Registry manages a set of notifiers.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	log       *logging.Logger

	// recent holds alerts sent within the repeat window; nil disables it.
	recent *cache.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
		log:       log.Sub("notify"),
	}
}

// Register adds n, replacing any notifier with the same name.
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[n.Name()] = n
	r.log.Debug().Str("notifier", n.Name()).Msg("notifier registered")
}

// SuppressRepeats drops an alert identical to one broadcast within window.
// A zero window turns suppression off.
func (r *Registry) SuppressRepeats(window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if window <= 0 {
		r.recent = nil
		return
	}
	r.recent = cache.New(window, 2*window)
}

// Get returns a notifier by name.
func (r *Registry) Get(name string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[name]
	return n, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Count returns the number of registered notifiers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

func (r *Registry) all() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		out = append(out, n)
	}
	return out
}

// Status reports every notifier that exposes its status.
func (r *Registry) Status() []Status {
	var out []Status
	for _, n := range r.all() {
		if s, ok := n.(interface{ Status() Status }); ok {
			out = append(out, s.Status())
		} else {
			out = append(out, Status{Name: n.Name()})
		}
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Run starts every notifier and blocks until all have returned. A notifier
// that exits with an error is logged; the others keep running.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, n := range r.all() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.log.Info().Str("notifier", n.Name()).Msg("starting notifier")
			if err := n.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Str("notifier", n.Name()).Msg("notifier exited with error")
			}
		}()
	}
	wg.Wait()
}

// StopAll stops every notifier.
func (r *Registry) StopAll(ctx context.Context) {
	for _, n := range r.all() {
		if err := n.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("notifier", n.Name()).Msg("failed to stop notifier")
		}
	}
}

// Broadcast delivers u to every notifier and joins their errors.
func (r *Registry) Broadcast(ctx context.Context, u domain.PriceUpdate) error {
	r.mu.RLock()
	recent := r.recent
	r.mu.RUnlock()

	key := alertKey(u)
	if recent != nil {
		if err := recent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			r.log.Debug().Str("trip", u.TripID).Msg("repeated alert suppressed")
			return nil
		}
	}

	var errs []error
	for _, n := range r.all() {
		if err := n.Notify(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	err := errors.Join(errs...)
	if err != nil && recent != nil {
		recent.Delete(key)
	}
	return err
}

func alertKey(u domain.PriceUpdate) string {
	return strings.Join([]string{u.TripID, u.TotalPrice, u.FlightPrice, u.HotelPrice}, "\x00")
}

// FormatUpdate renders u as a short alert. Missing prices are omitted.
func FormatUpdate(u domain.PriceUpdate) string {
	name := u.TripName
	if name == "" {
		name = u.TripID
	}

	var parts []string
	if u.FlightPrice != "" {
		parts = append(parts, "flight "+u.FlightPrice)
	}
	if u.HotelPrice != "" {
		parts = append(parts, "hotel "+u.HotelPrice)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Price update for %s", name)
	if u.TotalPrice != "" {
		fmt.Fprintf(&b, ": %s total", u.TotalPrice)
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	return b.String()
}
