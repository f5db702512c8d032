package watch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/hooks"
	"github.com/soyeahso/tripwatch/internal/live"
	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/soyeahso/tripwatch/internal/notify"
	"github.com/soyeahso/tripwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// recorder collects hook payloads by event.
type recorder struct {
	mu     sync.Mutex
	events []hooks.Payload
}

func (r *recorder) handler(_ context.Context, p hooks.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.events {
		out = append(out, p.Event)
	}
	return out
}

func newHooks(rec *recorder) *hooks.Manager {
	m := hooks.NewManager(testLog())
	for _, ev := range hooks.AllEvents {
		m.On(ev, "recorder", rec.handler)
	}
	return m
}

type broadcasts struct {
	mu  sync.Mutex
	got []domain.PriceUpdate
	err error
}

func (b *broadcasts) Broadcast(_ context.Context, u domain.PriceUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, u)
	return b.err
}

var update = domain.PriceUpdate{
	TripID:     "t1",
	TripName:   "Lisbon",
	TotalPrice: "$1,200",
	UpdatedAt:  time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
}

func TestHandlePriceUpdate_FansOut(t *testing.T) {
	book := store.NewMemoryPriceBook()
	rec := &recorder{}
	hm := newHooks(rec)
	sink := &broadcasts{err: errors.New("irc: not connected")}
	var out bytes.Buffer

	r := NewRouter(testLog(),
		WithPriceBook(book),
		WithHooks(hm),
		WithNotifiers(sink),
		WithOutput(&out),
	)
	r.HandlePriceUpdate(context.Background(), update)
	hm.Wait()

	got, ok, err := book.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "$1,200", got.TotalPrice)

	assert.Equal(t, []domain.PriceUpdate{update}, sink.got)
	assert.Contains(t, out.String(), "Price update for Lisbon: $1,200 total")

	require.Len(t, rec.events, 1)
	p := rec.events[0]
	assert.Equal(t, hooks.EventPriceUpdate, p.Event)
	assert.Equal(t, map[string]any{
		"trip_id":     "t1",
		"trip_name":   "Lisbon",
		"total_price": "$1,200",
		"updated_at":  "2026-10-01T09:30:00Z",
	}, p.Data)
}

func TestHandlePriceUpdate_NoConsumers(t *testing.T) {
	r := NewRouter(testLog())
	assert.NotPanics(t, func() {
		r.HandlePriceUpdate(context.Background(), update)
		r.HandleState(context.Background(), domain.StateConnected)
	})
}

func TestCallbacks_StateAndExpiry(t *testing.T) {
	rec := &recorder{}
	hm := newHooks(rec)

	var expired error
	r := NewRouter(testLog(), WithHooks(hm), WithExpiredHandler(func(err error) { expired = err }))
	cb := r.Callbacks(context.Background())

	cb.OnStateChange(domain.StateConnecting)
	cb.OnAuthError(api.ErrSessionExpired)
	hm.Wait()

	assert.ElementsMatch(t, []string{hooks.EventConnectionState, hooks.EventSessionExpired}, rec.names())
	assert.ErrorIs(t, expired, api.ErrSessionExpired)
}

// fakeChannel stands in for *live.Channel.
type fakeChannel struct {
	mu      sync.Mutex
	cb      live.Callbacks
	started chan struct{}
	closed  bool
}

func newFakeChannel() *fakeChannel { return &fakeChannel{started: make(chan struct{})} }

func (f *fakeChannel) SetCallbacks(cb live.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeChannel) callbacks() live.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeChannel) Start() { close(f.started) }

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	r := NewRouter(testLog(), WithHooks(newHooks(rec)))
	ch := newFakeChannel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, ch, nil) }()

	<-ch.started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, ch.closed)
	assert.Equal(t, []string{hooks.EventWatchStart, hooks.EventWatchStop}, rec.names())
}

func TestRun_ReturnsOnExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	book := store.NewMemoryPriceBook()
	r := NewRouter(testLog(), WithPriceBook(book))
	ch := newFakeChannel()
	reg := notify.NewRegistry(testLog())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), ch, reg) }()

	<-ch.started
	cb := ch.callbacks()
	cb.OnPriceUpdate(update)
	cb.OnAuthError(api.ErrSessionExpired)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, api.ErrSessionExpired)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	list, err := book.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
