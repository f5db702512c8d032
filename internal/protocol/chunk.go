// Package protocol implements the chat streaming wire format: newline
// delimited "data: <json>" records terminated by "data: [DONE]".
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/soyeahso/tripwatch/internal/domain"
)

// Chunk type discriminators on the wire.
const (
	TypeContent     = "content"
	TypeToolCall    = "tool_call"
	TypeToolResult  = "tool_result"
	TypeRateLimited = "rate_limited"
	TypeElicitation = "elicitation"
	TypeDone        = "done"
	TypeError       = "error"
)

// Chunk is one decoded protocol event. The set of implementations is closed:
// Content, ToolCall, ToolResult, RateLimited, Elicitation, Done and Error.
type Chunk interface {
	chunkType() string
}

// Content is a fragment of assistant text.
type Content struct {
	Text     string
	ThreadID string
}

// ToolCall announces a tool invocation. Arguments is the raw wire value,
// usually a JSON encoded string.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult carries the outcome of a tool call.
type ToolResult struct {
	ToolCallID string
	Name       string
	Result     any
	Success    bool
}

// RateLimited reports that the upstream model is throttled and the server is
// waiting before retrying.
type RateLimited struct {
	Attempt     int
	MaxAttempts int
	RetryAfter  float64 // seconds
}

// Elicitation asks the host to collect form input from the user.
type Elicitation struct {
	Request domain.ElicitationRequest
}

// Done ends the response normally.
type Done struct {
	ThreadID string
}

// Error is a server-signaled failure that aborts the response.
type Error struct {
	Message string
}

func (Content) chunkType() string     { return TypeContent }
func (ToolCall) chunkType() string    { return TypeToolCall }
func (ToolResult) chunkType() string  { return TypeToolResult }
func (RateLimited) chunkType() string { return TypeRateLimited }
func (Elicitation) chunkType() string { return TypeElicitation }
func (Done) chunkType() string        { return TypeDone }
func (Error) chunkType() string       { return TypeError }

// TypeOf returns the wire discriminator for c.
func TypeOf(c Chunk) string { return c.chunkType() }

// ToDomain converts the chunk into the shared domain shape.
func (r ToolResult) ToDomain() domain.ToolResult {
	return domain.ToolResult{
		ToolCallID: r.ToolCallID,
		Name:       r.Name,
		Result:     r.Result,
		IsError:    !r.Success,
	}
}

// ToDomain converts the chunk into a normalized domain tool call.
func (c ToolCall) ToDomain() domain.ToolCall {
	return domain.NewToolCall(c.ID, c.Name, c.Arguments)
}

// FormatRateLimitNotice renders the transient waiting text shown in place of
// assistant content while the server backs off.
func FormatRateLimitNotice(r RateLimited) string {
	return fmt.Sprintf("Rate limit reached. Retrying in %s (attempt %d of %d)...",
		formatSeconds(r.RetryAfter), r.Attempt, r.MaxAttempts)
}

func formatSeconds(s float64) string {
	if s == float64(int64(s)) {
		if s == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", int64(s))
	}
	return fmt.Sprintf("%.1f seconds", s)
}
