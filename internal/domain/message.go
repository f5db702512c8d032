// Package domain holds the types shared by the chat session, the push channel
// and their consumers.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	ToolCalls []ToolCall  `json:"toolCalls,omitempty"`
	Result    *ToolResult `json:"toolResult,omitempty"`

	// Error marks content that describes a failure rather than a reply.
	Error bool `json:"error,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Result != nil {
		r := *m.Result
		m.Result = &r
	}
	return m
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewToolCall builds a ToolCall from wire arguments that may be a JSON
// encoded string, an object, or missing entirely.
func NewToolCall(id, name string, rawArgs json.RawMessage) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: NormalizeArguments(rawArgs)}
}

// NormalizeArguments turns tool-call arguments into a parsed object.
// A JSON string is decoded a second time; anything that is not an object
// yields an empty map.
func NormalizeArguments(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return args
		}
		raw = json.RawMessage(encoded)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return args
	}
	return obj
}

// ToolResult is the outcome of a tool call, reported back by the server.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name"`
	Result     any    `json:"result"`
	IsError    bool   `json:"isError"`
}

// TripID returns the trip identifier carried in the result payload, if any.
// Both "trip_id" and "tripId" keys are recognized, at the top level or under
// a nested "trip" object.
func (r ToolResult) TripID() string {
	obj, ok := r.Result.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"trip_id", "tripId"} {
		if id, ok := obj[key].(string); ok && id != "" {
			return id
		}
	}
	if trip, ok := obj["trip"].(map[string]any); ok {
		if id, ok := trip["id"].(string); ok {
			return id
		}
	}
	return ""
}

// ElicitationRequest asks the user to complete a form before a tool call can
// finish. It is handed to the host once and then discarded.
type ElicitationRequest struct {
	ToolCallID    string         `json:"tool_call_id"`
	ToolName      string         `json:"tool_name"`
	Component     string         `json:"component"`
	Prefilled     map[string]any `json:"prefilled,omitempty"`
	MissingFields []string       `json:"missing_fields,omitempty"`
}
