// Package chat owns the conversation state of the trip assistant: the message
// transcript, the active thread and the single in-flight streaming request.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
)

// Transport is the service surface the session needs. *api.Client
// implements it.
type Transport interface {
	StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
	SubmitElicitation(ctx context.Context, sub api.ElicitationSubmission) (io.ReadCloser, error)
	FetchThread(ctx context.Context, threadID string) (*api.ThreadHistory, error)
}

// Callbacks are host notifications. Any field may be nil.
type Callbacks struct {
	OnToolCall    func(domain.ToolCall)
	OnToolResult  func(domain.ToolResult)
	OnElicitation func(domain.ElicitationRequest)
	OnError       func(error)
	OnChange      func(State)
}

// State is a point-in-time copy of the session.
type State struct {
	Messages []domain.Message
	ThreadID string // empty until the server assigns one
	Loading  bool
	Err      error
}

// Session is a chat conversation. All methods are safe for concurrent use;
// at most one request mutates the transcript at a time and a newer request
// always supersedes an older one.
type Session struct {
	transport Transport
	log       *logging.Logger
	navigate  func()
	now       func() time.Time

	// callbacks is read at every invocation so hosts can swap handlers while
	// a response is streaming.
	callbacks atomic.Pointer[Callbacks]

	mu       sync.Mutex
	messages []domain.Message
	threadID string
	loading  bool
	err      error
	gen      uint64
	cancel   context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithNavigator sets the action taken when the session expires, typically
// returning the user to the home screen.
func WithNavigator(fn func()) Option {
	return func(s *Session) {
		s.navigate = fn
	}
}

// WithCallbacks registers the initial host callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Session) {
		s.callbacks.Store(&cb)
	}
}

// WithClock overrides the timestamp source for new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates an empty session.
func New(transport Transport, log *logging.Logger, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		log:       log.Sub("chat"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.callbacks.Load() == nil {
		s.callbacks.Store(&Callbacks{})
	}
	if s.navigate == nil {
		s.navigate = func() {
			s.log.Warn().Msg("session expired; no navigator configured")
		}
	}
	return s
}

// SetCallbacks replaces the host callbacks. In-flight requests pick up the
// new callbacks at their next notification.
func (s *Session) SetCallbacks(cb Callbacks) {
	s.callbacks.Store(&cb)
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	msgs := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.Clone()
	}
	return State{Messages: msgs, ThreadID: s.threadID, Loading: s.loading, Err: s.err}
}

// SendMessage appends the user's message and an assistant placeholder, then
// streams the reply into the placeholder. Blank text is ignored. It returns
// the error recorded on the session, or nil if the request completed or was
// superseded by a newer one.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	reqCtx, gen := s.beginLocked(ctx)
	now := s.now()
	user := domain.Message{ID: uuid.NewString(), Role: domain.RoleUser, Content: text, CreatedAt: now}
	assistant := domain.Message{ID: uuid.NewString(), Role: domain.RoleAssistant, CreatedAt: now}
	s.messages = append(s.messages, user, assistant)
	req := api.ChatRequest{Message: text, ThreadID: optional(s.threadID)}
	s.mu.Unlock()
	s.changed()

	s.log.Debug().Uint64("gen", gen).Str("thread", deref(req.ThreadID)).Msg("sending message")

	target := &streamTarget{assistantID: assistant.ID}
	err := s.run(reqCtx, gen, target, func(ctx context.Context) (io.ReadCloser, error) {
		return s.transport.StreamChat(ctx, req)
	})
	return s.finish(ctx, gen, target, err)
}

// RetryLastMessage drops everything from the most recent user message on and
// sends that message again. It does nothing when there is no user message.
func (s *Session) RetryLastMessage(ctx context.Context) error {
	s.mu.Lock()
	idx := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == domain.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	text := s.messages[idx].Content
	s.cancelLocked()
	s.messages = s.messages[:idx:idx]
	s.mu.Unlock()

	s.log.Debug().Msg("retrying last message")
	return s.SendMessage(ctx, text)
}

// LoadThread replaces the transcript with the persisted history of threadID.
func (s *Session) LoadThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	reqCtx, gen := s.beginLocked(ctx)
	s.mu.Unlock()
	s.changed()

	hist, err := s.transport.FetchThread(reqCtx, threadID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.releaseLocked()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.mu.Unlock()
			s.changed()
			return ctx.Err()
		}
		s.err = loadError(err)
		err = s.err
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("thread", threadID).Msg("failed to load thread")
		s.failed(err)
		return err
	}
	s.messages = convertHistory(hist.Messages, s.now)
	s.threadID = threadID
	s.mu.Unlock()

	s.log.Debug().Str("thread", threadID).Int("messages", len(hist.Messages)).Msg("thread loaded")
	s.changed()
	return nil
}

// SwitchThread is LoadThread; it exists for hosts that distinguish opening a
// thread from switching away from the current one.
func (s *Session) SwitchThread(ctx context.Context, threadID string) error {
	return s.LoadThread(ctx, threadID)
}

// StartNewThread abandons the current conversation. The next message opens a
// new thread on the server.
func (s *Session) StartNewThread() {
	s.reset()
}

// ClearMessages empties the transcript and forgets the thread.
func (s *Session) ClearMessages() {
	s.reset()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.cancelLocked()
	s.messages = nil
	s.threadID = ""
	s.err = nil
	s.loading = false
	s.mu.Unlock()
	s.changed()
}

// SubmitElicitation sends the user's form input and processes the streamed
// continuation. It returns the trip id produced by the resumed tool call, if
// any.
func (s *Session) SubmitElicitation(ctx context.Context, sub api.ElicitationSubmission) (string, error) {
	if sub.ThreadID == nil {
		s.mu.Lock()
		sub.ThreadID = optional(s.threadID)
		s.mu.Unlock()
	}
	return s.processElicitation(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return s.transport.SubmitElicitation(ctx, sub)
	})
}

// ProcessElicitationResponse consumes a stream that resumes the conversation
// after an elicitation form was completed.
//
// The pending tool call is moved off the most recent assistant message that
// has one and onto a new assistant message created by the first content or
// tool call chunk, so that the explanatory text precedes the invocation in
// the transcript. Only the last tool call of that message is moved.
func (s *Session) ProcessElicitationResponse(ctx context.Context, body io.Reader) (string, error) {
	return s.processElicitation(ctx, func(context.Context) (io.ReadCloser, error) {
		if rc, ok := body.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(body), nil
	})
}

func (s *Session) processElicitation(ctx context.Context, open func(context.Context) (io.ReadCloser, error)) (string, error) {
	s.mu.Lock()
	reqCtx, gen := s.beginLocked(ctx)
	target := &streamTarget{pending: s.detachPendingToolCallLocked()}
	s.mu.Unlock()
	s.changed()

	err := s.run(reqCtx, gen, target, open)
	err = s.finish(ctx, gen, target, err)
	return target.tripID, err
}

// detachPendingToolCallLocked removes and returns the last tool call of the
// most recent assistant message that has any.
func (s *Session) detachPendingToolCallLocked() *domain.ToolCall {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.Role != domain.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		tc := m.ToolCalls[len(m.ToolCalls)-1]
		m.ToolCalls = m.ToolCalls[:len(m.ToolCalls)-1]
		if len(m.ToolCalls) == 0 {
			m.ToolCalls = nil
		}
		return &tc
	}
	return nil
}

// beginLocked supersedes any in-flight request and returns the context and
// generation of the new one.
func (s *Session) beginLocked(parent context.Context) (context.Context, uint64) {
	s.cancelLocked()
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.loading = true
	s.err = nil
	return ctx, s.gen
}

// cancelLocked aborts the in-flight request, if any, and invalidates its
// generation.
func (s *Session) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

// releaseLocked ends the current request without invalidating it.
func (s *Session) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
}

// finish records the outcome of a streaming request.
func (s *Session) finish(parent context.Context, gen uint64, target *streamTarget, err error) error {
	s.mu.Lock()
	if gen != s.gen || errors.Is(err, errSuperseded) {
		s.mu.Unlock()
		s.log.Debug().Uint64("gen", gen).Msg("request superseded")
		return nil
	}
	s.releaseLocked()

	if err == nil {
		s.mu.Unlock()
		s.changed()
		return nil
	}

	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		s.mu.Unlock()
		s.changed()
		return parent.Err()
	}

	s.err = err
	if msg := s.ensureTargetLocked(target); msg != nil {
		msg.Content = displayText(err)
		msg.Error = true
	}
	s.mu.Unlock()

	expired := errors.Is(err, api.ErrSessionExpired)
	s.log.Warn().Err(err).Bool("expired", expired).Msg("chat request failed")
	s.failed(err)
	if expired {
		s.navigate()
	}
	return err
}

func (s *Session) failed(err error) {
	if cb := s.callbacks.Load(); cb.OnError != nil {
		cb.OnError(err)
	}
	s.changed()
}

func (s *Session) changed() {
	cb := s.callbacks.Load()
	if cb.OnChange == nil {
		return
	}
	cb.OnChange(s.Snapshot())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
