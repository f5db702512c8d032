package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/protocol"
)

// streamTarget tracks the assistant message a response is written into.
type streamTarget struct {
	// assistantID is empty until the message exists. Elicitation responses
	// create it on the first content or tool call chunk.
	assistantID string

	// pending is a tool call re-homed onto the message when it is created.
	pending *domain.ToolCall

	// transient is set while the message shows a rate-limit notice.
	transient bool

	tripID string
}

// run opens the response and applies its chunks until the stream ends, the
// server reports an error, or the request is superseded.
func (s *Session) run(ctx context.Context, gen uint64, target *streamTarget, open func(context.Context) (io.ReadCloser, error)) error {
	body, err := open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	// Unblock a pending read when the request is cancelled.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	for chunk, err := range protocol.Chunks(body) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading response: %w", err)
		}
		done, err := s.apply(gen, target, chunk)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ctx.Err()
}

// apply reduces one chunk into the session state.
func (s *Session) apply(gen uint64, target *streamTarget, chunk protocol.Chunk) (done bool, err error) {
	var notify func(*Callbacks)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false, errSuperseded
	}

	switch c := chunk.(type) {
	case protocol.Content:
		msg := s.ensureTargetLocked(target)
		if target.transient {
			msg.Content = ""
			target.transient = false
		}
		msg.Content += c.Text
		if c.ThreadID != "" {
			s.threadID = c.ThreadID
		}

	case protocol.ToolCall:
		tc := c.ToDomain()
		msg := s.ensureTargetLocked(target)
		msg.ToolCalls = append(msg.ToolCalls, tc)
		notify = func(cb *Callbacks) {
			if cb.OnToolCall != nil {
				cb.OnToolCall(tc)
			}
		}

	case protocol.ToolResult:
		r := c.ToDomain()
		s.messages = append(s.messages, toolMessage(r, s.now()))
		if id := r.TripID(); id != "" {
			target.tripID = id
		}
		notify = func(cb *Callbacks) {
			if cb.OnToolResult != nil {
				cb.OnToolResult(r)
			}
		}

	case protocol.RateLimited:
		if msg := s.targetLocked(target); msg != nil {
			msg.Content = protocol.FormatRateLimitNotice(c)
			target.transient = true
		}

	case protocol.Elicitation:
		req := c.Request
		notify = func(cb *Callbacks) {
			if cb.OnElicitation != nil {
				cb.OnElicitation(req)
			}
		}

	case protocol.Done:
		if c.ThreadID != "" {
			s.threadID = c.ThreadID
		}
		done = true

	case protocol.Error:
		err = &StreamError{Message: c.Message}

	default:
		s.log.Warn().Str("type", fmt.Sprintf("%T", chunk)).Msg("unhandled chunk")
	}
	s.mu.Unlock()

	if notify != nil {
		notify(s.callbacks.Load())
	}
	if err == nil {
		s.changed()
	}
	return done, err
}

// targetLocked returns the target message, or nil if it does not exist yet.
func (s *Session) targetLocked(target *streamTarget) *domain.Message {
	if target.assistantID == "" {
		return nil
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == target.assistantID {
			return &s.messages[i]
		}
	}
	return nil
}

// ensureTargetLocked returns the target message, creating it (seeded with
// the re-homed tool call) if needed. The returned pointer is valid until the
// next append to s.messages.
func (s *Session) ensureTargetLocked(target *streamTarget) *domain.Message {
	if target.assistantID != "" {
		return s.targetLocked(target)
	}

	msg := domain.Message{ID: uuid.NewString(), Role: domain.RoleAssistant, CreatedAt: s.now()}
	if target.pending != nil {
		msg.ToolCalls = []domain.ToolCall{*target.pending}
		target.pending = nil
	}
	s.messages = append(s.messages, msg)
	target.assistantID = msg.ID
	return &s.messages[len(s.messages)-1]
}

func toolMessage(r domain.ToolResult, now time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleTool,
		Content:   resultText(r.Result),
		CreatedAt: now,
		Result:    &r,
	}
}

func resultText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// convertHistory maps persisted messages onto the transcript shape.
func convertHistory(stored []api.StoredMessage, now func() time.Time) []domain.Message {
	msgs := make([]domain.Message, 0, len(stored))
	for _, m := range stored {
		msg := domain.Message{
			ID:        m.ID,
			Role:      domain.Role(m.Role),
			Content:   m.Content,
			CreatedAt: parseTime(m.CreatedAt, now),
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, storedToolCall(tc))
		}
		if msg.Role == domain.RoleTool {
			msg.Result = &domain.ToolResult{
				ToolCallID: m.ToolCallID,
				Name:       m.Name,
				Result:     parseStoredResult(m.Content),
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// storedToolCall accepts both the flat and the function-wrapped shapes.
func storedToolCall(tc api.StoredToolCall) domain.ToolCall {
	name, args := tc.Name, tc.Arguments
	if tc.Function != nil {
		if name == "" {
			name = tc.Function.Name
		}
		if len(args) == 0 {
			args = tc.Function.Arguments
		}
	}
	return domain.NewToolCall(tc.ID, name, args)
}

func parseStoredResult(content string) any {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return content
	}
	return v
}

func parseTime(s string, now func() time.Time) time.Time {
	if t, ok := domain.ParseTimestamp(s); ok {
		return t
	}
	return now()
}
