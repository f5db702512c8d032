package chat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/soyeahso/tripwatch/internal/api"
)

// errSuperseded stops a reader loop whose request is no longer current.
var errSuperseded = errors.New("chat: request superseded")

// ErrConversationNotFound is returned by LoadThread for unknown threads.
var ErrConversationNotFound = errors.New("conversation not found")

// StreamError is a failure signaled by the server inside the response stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "the assistant reported an error"
	}
	return e.Message
}

// LoadError describes a failed thread history fetch.
type LoadError struct {
	Status int
	Detail string
}

func (e *LoadError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("failed to load conversation (status %d)", e.Status)
}

// loadError maps a FetchThread failure onto the error surfaced to the host.
func loadError(err error) error {
	var se *api.StatusError
	if !errors.As(err, &se) {
		return err
	}
	if se.Code == http.StatusNotFound {
		return ErrConversationNotFound
	}
	return &LoadError{Status: se.Code, Detail: se.Detail}
}

// displayText is the error text written into the assistant placeholder.
func displayText(err error) string {
	if errors.Is(err, api.ErrSessionExpired) {
		return "Error: Your session has expired. Please log in again."
	}
	return "Error: " + err.Error()
}
