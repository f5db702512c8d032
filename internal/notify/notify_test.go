package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	name    string
	fail    error
	mu      sync.Mutex
	got     []domain.PriceUpdate
	started chan struct{}
	stopped bool
}

func newFake(name string) *fakeNotifier {
	return &fakeNotifier{name: name, started: make(chan struct{})}
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Start(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeNotifier) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeNotifier) Notify(_ context.Context, u domain.PriceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, u)
	return f.fail
}

func testRegistry() *Registry {
	return NewRegistry(logging.New(nil, "silent"))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := testRegistry()
	r.Register(newFake("irc"))
	r.Register(newFake("audit"))

	n, ok := r.Get("irc")
	require.True(t, ok)
	assert.Equal(t, "irc", n.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"audit", "irc"}, r.Names())
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_BroadcastJoinsErrors(t *testing.T) {
	r := testRegistry()
	good := newFake("good")
	bad := newFake("bad")
	bad.fail = errors.New("not connected")
	r.Register(good)
	r.Register(bad)

	u := domain.PriceUpdate{TripID: "t1", TotalPrice: "$10"}
	err := r.Broadcast(context.Background(), u)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: not connected")
	assert.Equal(t, []domain.PriceUpdate{u}, good.got)
	assert.Equal(t, []domain.PriceUpdate{u}, bad.got)
}

func TestRegistry_SuppressRepeats(t *testing.T) {
	r := testRegistry()
	f := newFake("irc")
	r.Register(f)
	r.SuppressRepeats(time.Minute)

	ctx := context.Background()
	u := domain.PriceUpdate{TripID: "t1", TotalPrice: "$10"}
	require.NoError(t, r.Broadcast(ctx, u))
	require.NoError(t, r.Broadcast(ctx, u))

	cheaper := domain.PriceUpdate{TripID: "t1", TotalPrice: "$9"}
	require.NoError(t, r.Broadcast(ctx, cheaper))
	assert.Equal(t, []domain.PriceUpdate{u, cheaper}, f.got)

	r.SuppressRepeats(0)
	require.NoError(t, r.Broadcast(ctx, u))
	assert.Len(t, f.got, 3)
}

func TestRegistry_FailedAlertNotSuppressed(t *testing.T) {
	r := testRegistry()
	f := newFake("irc")
	f.fail = errors.New("not connected")
	r.Register(f)
	r.SuppressRepeats(time.Minute)

	u := domain.PriceUpdate{TripID: "t1", TotalPrice: "$10"}
	assert.Error(t, r.Broadcast(context.Background(), u))
	assert.Error(t, r.Broadcast(context.Background(), u))
	assert.Len(t, f.got, 2)
}

func TestRegistry_RunAndStop(t *testing.T) {
	r := testRegistry()
	a, b := newFake("a"), newFake("b")
	r.Register(a)
	r.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	<-a.started
	<-b.started
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	r.StopAll(context.Background())
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestRegistry_Status(t *testing.T) {
	r := testRegistry()
	r.Register(newFake("b"))
	r.Register(newFake("a"))

	assert.Equal(t, []Status{{Name: "a"}, {Name: "b"}}, r.Status())
}

func TestFormatUpdate(t *testing.T) {
	tests := []struct {
		name string
		in   domain.PriceUpdate
		want string
	}{
		{
			"full",
			domain.PriceUpdate{TripID: "t1", TripName: "Lisbon", FlightPrice: "$400", HotelPrice: "$800", TotalPrice: "$1,200"},
			"Price update for Lisbon: $1,200 total (flight $400, hotel $800)",
		},
		{
			"total only",
			domain.PriceUpdate{TripID: "t1", TripName: "Lisbon", TotalPrice: "$1,200"},
			"Price update for Lisbon: $1,200 total",
		},
		{
			"no name",
			domain.PriceUpdate{TripID: "t9", HotelPrice: "$300"},
			"Price update for t9 (hotel $300)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUpdate(tt.in))
		})
	}
}
