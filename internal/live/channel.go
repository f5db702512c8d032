// Package live keeps the price-update push channel open: it tracks the
// connection state, reconnects with exponential backoff and checks the
// session when the transport fails.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/auth"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
)

// ErrMaxReconnect is the terminal channel error once backoff is exhausted.
var ErrMaxReconnect = errors.New("Max reconnect attempts reached")

// Config controls the channel.
type Config struct {
	Enabled              bool
	Intervals            Intervals
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig matches the service's defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		Intervals:            Intervals{Heartbeat: 30 * time.Second, Poll: 60 * time.Second},
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Callbacks are host notifications. Any field may be nil.
type Callbacks struct {
	OnPriceUpdate func(domain.PriceUpdate)
	OnHeartbeat   func(domain.Heartbeat)
	OnConnected   func(domain.ConnectedInfo)
	OnError       func(error)
	// OnAuthError replaces the default redirect when the session expired.
	OnAuthError   func(error)
	OnStateChange func(domain.ConnectionState)
}

// Channel owns at most one live push connection.
type Channel struct {
	transport Transport
	probe     auth.Prober
	sched     Scheduler
	log       *logging.Logger
	cfg       Config
	redirect  func()

	callbacks atomic.Pointer[Callbacks]

	mu      sync.Mutex
	state   domain.ConnectionState
	lastErr error
	backoff Backoff
	conn    Conn
	cancel  context.CancelFunc
	timer   Timer
	gen     uint64
	closed  bool

	wg sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithRedirect sets the action taken on session expiry when no OnAuthError
// callback is registered.
func WithRedirect(fn func()) Option {
	return func(c *Channel) { c.redirect = fn }
}

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(c *Channel) { c.sched = s }
}

// WithCallbacks registers the initial callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Channel) { c.callbacks.Store(&cb) }
}

// NewChannel creates a disconnected channel.
func NewChannel(transport Transport, probe auth.Prober, cfg Config, log *logging.Logger, opts ...Option) *Channel {
	c := &Channel{
		transport: transport,
		probe:     probe,
		sched:     realScheduler{},
		log:       log.Sub("live"),
		cfg:       cfg,
		backoff:   Backoff{Base: cfg.ReconnectDelay, MaxAttempts: cfg.MaxReconnectAttempts},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.callbacks.Load() == nil {
		c.callbacks.Store(&Callbacks{})
	}
	if c.redirect == nil {
		c.redirect = func() {
			c.log.Warn().Msg("session expired; no redirect configured")
		}
	}
	return c
}

// SetCallbacks replaces the callbacks. The next event uses the new set.
func (c *Channel) SetCallbacks(cb Callbacks) {
	c.callbacks.Store(&cb)
}

// Start connects unless the channel is disabled.
func (c *Channel) Start() {
	if !c.cfg.Enabled {
		c.log.Debug().Msg("push channel disabled")
		return
	}
	c.Connect()
}

// Connect drops any current connection and opens a new one. It also clears
// the failure count, so a channel in the terminal error state can be revived.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.backoff.Reset()
	changed := c.connectLocked()
	c.mu.Unlock()

	c.stateChanged(changed)
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.releaseLocked()
	c.gen++
	c.backoff.Reset()
	changed := c.setStateLocked(domain.StateDisconnected)
	c.mu.Unlock()

	c.log.Info().Msg("push channel disconnected")
	c.stateChanged(changed)
}

// Close tears the channel down for good. It emits no state change and waits
// for the connection goroutine to exit, so it must not be called from a
// callback.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.releaseLocked()
	c.gen++
	c.state = domain.StateDisconnected
	c.mu.Unlock()

	c.wg.Wait()
}

// State returns the current connection state.
func (c *Channel) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent failure, or nil after a successful
// connection.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Attempts is the number of reconnects scheduled since the last success.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Attempt()
}

// connectLocked starts a connection goroutine for a fresh generation.
func (c *Channel) connectLocked() bool {
	c.releaseLocked()
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(ctx, gen)

	c.log.Debug().Uint64("gen", gen).Int("attempt", c.backoff.Attempt()).Msg("connecting")
	return c.setStateLocked(domain.StateConnecting)
}

// releaseLocked closes the connection and stops the reconnect timer.
func (c *Channel) releaseLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug().Err(err).Msg("closing push connection")
		}
		c.conn = nil
	}
}

func (c *Channel) setStateLocked(s domain.ConnectionState) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) stateChanged(changed bool) {
	if !changed {
		return
	}
	s := c.State()
	c.log.Debug().Str("state", s.String()).Msg("state changed")
	if cb := c.callbacks.Load(); cb.OnStateChange != nil {
		cb.OnStateChange(s)
	}
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closed
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	err := c.serve(ctx, gen)
	if ctx.Err() != nil {
		return
	}
	c.fail(ctx, gen, err)
}

func (c *Channel) serve(ctx context.Context, gen uint64) error {
	conn, err := c.transport.Open(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	return conn.Read(func(ev Event) { c.dispatch(gen, ev) })
}

// fail handles a transport failure of connection gen.
func (c *Channel) fail(ctx context.Context, gen uint64, err error) {
	c.log.Warn().Err(err).Msg("push connection failed")

	result := c.probe.Probe(ctx)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.releaseLocked()

	if result == auth.Unauthenticated {
		c.lastErr = api.ErrSessionExpired
		changed := c.setStateLocked(domain.StateError)
		c.mu.Unlock()

		c.log.Warn().Msg("session expired; not reconnecting")
		c.stateChanged(changed)
		if cb := c.callbacks.Load(); cb.OnAuthError != nil {
			cb.OnAuthError(api.ErrSessionExpired)
		} else {
			c.redirect()
		}
		return
	}

	c.lastErr = err
	delay, ok := c.backoff.Next()
	if !ok {
		c.lastErr = ErrMaxReconnect
		changed := c.setStateLocked(domain.StateError)
		c.mu.Unlock()

		c.log.Error().Int("attempts", c.cfg.MaxReconnectAttempts).Msg("giving up on push channel")
		c.stateChanged(changed)
		if cb := c.callbacks.Load(); cb.OnError != nil {
			cb.OnError(ErrMaxReconnect)
		}
		return
	}

	attempt := c.backoff.Attempt()
	c.timer = c.sched.AfterFunc(delay, func() { c.reconnect(gen) })
	changed := c.setStateLocked(domain.StateConnecting)
	c.mu.Unlock()

	c.log.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Str("probe", result.String()).
		Msg("reconnect scheduled")
	c.stateChanged(changed)
}

// reconnect is the timer callback for a failed connection gen.
func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.timer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	changed := c.connectLocked()
	c.mu.Unlock()

	c.stateChanged(changed)
}

// dispatch routes one event. Malformed payloads are dropped.
func (c *Channel) dispatch(gen uint64, ev Event) {
	switch ev.Type {
	case EventConnected:
		var info domain.ConnectedInfo
		if !c.decode(ev, &info) {
			return
		}
		c.mu.Lock()
		if gen != c.gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.backoff.Reset()
		c.lastErr = nil
		changed := c.setStateLocked(domain.StateConnected)
		c.mu.Unlock()

		c.log.Info().Str("session", info.SessionID).Msg("push channel connected")
		c.stateChanged(changed)
		if cb := c.callbacks.Load(); cb.OnConnected != nil {
			cb.OnConnected(info)
		}

	case EventPriceUpdate:
		c.priceUpdate(gen, ev, ev.Data)

	case EventHeartbeat:
		var hb domain.Heartbeat
		if !c.decode(ev, &hb) || !c.current(gen) {
			return
		}
		if cb := c.callbacks.Load(); cb.OnHeartbeat != nil {
			cb.OnHeartbeat(hb)
		}

	case EventError:
		var se domain.ServerError
		if !c.decode(ev, &se) {
			return
		}
		c.mu.Lock()
		if gen != c.gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.lastErr = &se
		c.mu.Unlock()

		c.log.Warn().Str("message", se.Message).Msg("server reported an error")
		if cb := c.callbacks.Load(); cb.OnError != nil {
			cb.OnError(&se)
		}

	case EventMessage:
		var generic struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if !c.decode(ev, &generic) || generic.Type != EventPriceUpdate {
			return
		}
		payload := ev.Data
		if len(generic.Data) > 0 && generic.Data[0] == '{' {
			payload = generic.Data
		}
		c.priceUpdate(gen, ev, payload)

	default:
		c.log.Trace().Str("event", ev.Type).Msg("ignoring event")
	}
}

func (c *Channel) priceUpdate(gen uint64, ev Event, payload []byte) {
	var pu domain.PriceUpdate
	if !c.decode(Event{Type: ev.Type, Data: payload}, &pu) {
		return
	}
	if pu.TripID == "" {
		c.log.Debug().Str("event", ev.Type).Msg("dropping price update without trip id")
		return
	}
	if !c.current(gen) {
		return
	}
	if cb := c.callbacks.Load(); cb.OnPriceUpdate != nil {
		cb.OnPriceUpdate(pu)
	}
}

func (c *Channel) decode(ev Event, v any) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		c.log.Debug().Err(err).Str("event", ev.Type).Msg("dropping malformed event")
		return false
	}
	return true
}
