package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrSessionExpired is returned for 401 responses. It is never retried
	// automatically.
	ErrSessionExpired = errors.New("session expired, please log in again")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrEmptyBody is returned when a streaming response has no body.
	ErrEmptyBody = errors.New("empty response body")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("request failed (%d): %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("request failed (%d)", e.Code)
}

// Unwrap maps well-known status codes onto sentinel errors so callers can use
// errors.Is.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return ErrSessionExpired
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// errorBody covers the error envelopes the service returns.
type errorBody struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckResponse turns a non-2xx response into a *StatusError, consuming and
// closing the body.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Code: resp.StatusCode, Detail: extractDetail(data)}
}

func extractDetail(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		for _, s := range []string{body.Detail, body.Error, body.Message} {
			if s != "" {
				return s
			}
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}
