package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Encode writes c as a single data record followed by a blank separator line.
func Encode(w io.Writer, c Chunk) error {
	obj := map[string]any{"type": c.chunkType()}

	switch c := c.(type) {
	case Content:
		obj["content"] = c.Text
		if c.ThreadID != "" {
			obj["thread_id"] = c.ThreadID
		}
	case ToolCall:
		args := c.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`""`)
		}
		obj["tool_call"] = map[string]any{"id": c.ID, "name": c.Name, "arguments": args}
	case ToolResult:
		obj["tool_call_id"] = c.ToolCallID
		obj["name"] = c.Name
		obj["result"] = c.Result
		obj["success"] = c.Success
	case RateLimited:
		obj["attempt"] = c.Attempt
		obj["max_attempts"] = c.MaxAttempts
		obj["retry_after_seconds"] = c.RetryAfter
	case Elicitation:
		obj["tool_call_id"] = c.Request.ToolCallID
		obj["tool_name"] = c.Request.ToolName
		obj["component"] = c.Request.Component
		if c.Request.Prefilled != nil {
			obj["prefilled"] = c.Request.Prefilled
		}
		if len(c.Request.MissingFields) > 0 {
			obj["missing_fields"] = c.Request.MissingFields
		}
	case Done:
		if c.ThreadID != "" {
			obj["thread_id"] = c.ThreadID
		}
	case Error:
		obj["error"] = c.Message
	default:
		return fmt.Errorf("protocol: cannot encode %T", c)
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("protocol: encoding %s chunk: %w", c.chunkType(), err)
	}
	_, err = fmt.Fprintf(w, "%s %s\n\n", dataPrefix, data)
	return err
}

// EncodeDone writes the end-of-stream sentinel record.
func EncodeDone(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s\n\n", dataPrefix, doneSentinel)
	return err
}
