package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/soyeahso/tripwatch/internal/domain"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// ErrUnknownType is returned by ParsePayload for a well-formed record whose
// type discriminator is not recognized.
var ErrUnknownType = errors.New("protocol: unknown chunk type")

// wireChunk is the union of every field any chunk type carries.
type wireChunk struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`

	ToolCall  *wireToolCall   `json:"tool_call"`
	ID        string          `json:"id"`
	Arguments json.RawMessage `json:"arguments"`

	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Success    bool            `json:"success"`

	Attempt           int      `json:"attempt"`
	MaxAttempts       int      `json:"max_attempts"`
	RetryAfterSeconds *float64 `json:"retry_after_seconds"`
	RetryAfter        float64  `json:"retry_after"` // older servers

	ToolName      string         `json:"tool_name"`
	Component     string         `json:"component"`
	Prefilled     map[string]any `json:"prefilled"`
	MissingFields []string       `json:"missing_fields"`

	Error   string `json:"error"`
	Message string `json:"message"`
}

type wireToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParsePayload decodes the JSON payload of a single data record.
func ParsePayload(payload []byte) (Chunk, error) {
	var w wireChunk
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("protocol: malformed chunk: %w", err)
	}

	switch w.Type {
	case TypeContent:
		return Content{Text: w.Content, ThreadID: w.ThreadID}, nil
	case TypeToolCall:
		tc := ToolCall{ID: w.ID, Name: w.Name, Arguments: w.Arguments}
		if w.ToolCall != nil {
			tc = ToolCall{ID: w.ToolCall.ID, Name: w.ToolCall.Name, Arguments: w.ToolCall.Arguments}
		}
		return tc, nil
	case TypeToolResult:
		var result any
		if len(w.Result) > 0 {
			if err := json.Unmarshal(w.Result, &result); err != nil {
				return nil, fmt.Errorf("protocol: malformed tool result: %w", err)
			}
		}
		return ToolResult{ToolCallID: w.ToolCallID, Name: w.Name, Result: result, Success: w.Success}, nil
	case TypeRateLimited:
		wait := w.RetryAfter
		if w.RetryAfterSeconds != nil {
			wait = *w.RetryAfterSeconds
		}
		return RateLimited{Attempt: w.Attempt, MaxAttempts: w.MaxAttempts, RetryAfter: wait}, nil
	case TypeElicitation:
		return Elicitation{Request: domain.ElicitationRequest{
			ToolCallID:    w.ToolCallID,
			ToolName:      w.ToolName,
			Component:     w.Component,
			Prefilled:     w.Prefilled,
			MissingFields: w.MissingFields,
		}}, nil
	case TypeDone:
		return Done{ThreadID: w.ThreadID}, nil
	case TypeError:
		msg := w.Error
		if msg == "" {
			msg = w.Message
		}
		return Error{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

// Decoder reads chunks from a stream. Records split across reads are held in
// the buffered reader until their terminating newline arrives.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next well-formed chunk. It returns io.EOF after the
// [DONE] sentinel or when the stream ends. Malformed and unrecognized records
// are skipped. An unterminated trailing fragment at end of stream is discarded.
func (d *Decoder) Next() (Chunk, error) {
	for !d.done {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
				return nil, io.EOF
			}
			return nil, err
		}

		payload, ok := dataPayload(line)
		if !ok {
			continue
		}
		if payload == doneSentinel {
			d.done = true
			return nil, io.EOF
		}

		chunk, err := ParsePayload([]byte(payload))
		if err != nil {
			continue
		}
		return chunk, nil
	}
	return nil, io.EOF
}

// Chunks decodes r lazily. Each call to the returned sequence starts reading
// where the reader currently is; a read error is yielded once and ends the
// sequence.
func Chunks(r io.Reader) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		d := NewDecoder(r)
		for {
			chunk, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// dataPayload extracts the payload of a data record, or reports false for
// blank separators, comments and other fields.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}
