package api

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
)

// ChatRequest starts or continues a conversation. A nil ThreadID asks the
// server to open a new thread.
type ChatRequest struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"thread_id"`
}

// ElicitationSubmission returns the user's form input for a pending tool call.
type ElicitationSubmission struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	ThreadID   *string        `json:"thread_id"`
	Action     string         `json:"action"` // "accept" | "decline" | "cancel"
	Data       map[string]any `json:"data,omitempty"`
}

// Conversation is thread metadata returned with the history.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// StoredToolCall is a persisted tool call. Older records nest the name and
// arguments under Function.
type StoredToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Function  *StoredFunction `json:"function,omitempty"`
}

// StoredFunction is the nested representation of a tool call.
type StoredFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// StoredMessage is one persisted message of a thread.
type StoredMessage struct {
	ID         string           `json:"id,omitempty"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []StoredToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty"`
}

// ThreadHistory is the full persisted transcript of a thread.
type ThreadHistory struct {
	Conversation Conversation    `json:"conversation"`
	Messages     []StoredMessage `json:"messages"`
}

// StreamChat sends a chat message and returns the response stream. The
// stream ends when ctx is cancelled or the server finishes.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	return c.openStream(ctx, PathChatStream, req)
}

// SubmitElicitation sends completed form input; the response continues the
// conversation in the chat stream format.
func (c *Client) SubmitElicitation(ctx context.Context, sub ElicitationSubmission) (io.ReadCloser, error) {
	if sub.Action == "" {
		sub.Action = "accept"
	}
	return c.openStream(ctx, PathElicitation, sub)
}

// FetchThread loads the persisted history of a thread.
func (c *Client) FetchThread(ctx context.Context, threadID string) (*ThreadHistory, error) {
	var envelope struct {
		Data ThreadHistory `json:"data"`
	}
	if err := c.getJSON(ctx, PathThreads+url.PathEscape(threadID), &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}
