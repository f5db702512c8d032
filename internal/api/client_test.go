package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, testLog(), opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com", testLog())
	assert.Error(t, err)
}

func TestNew_InstallsCookieJar(t *testing.T) {
	c, err := New("https://example.com/", testLog())
	require.NoError(t, err)
	assert.NotNil(t, c.Jar())
}

func TestURL(t *testing.T) {
	c, err := New("https://example.com/base/", testLog())
	require.NoError(t, err)

	u := c.URL(PathPriceStream, map[string][]string{"poll_interval": {"60"}})
	assert.Equal(t, "https://example.com/base/api/prices/stream?poll_interval=60", u.String())

	ws := c.WebSocketURL("/ws", nil)
	assert.Equal(t, "wss://example.com/base/ws", ws.String())
}

func TestStreamChat_SendsBodyAndToken(t *testing.T) {
	var got ChatRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathChatStream, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "data: [DONE]\n\n")
	}), WithToken("tok"))

	body, err := c.StreamChat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", string(data))
	assert.Equal(t, "hi", got.Message)
	assert.Nil(t, got.ThreadID)
}

func TestStreamChat_NullThreadIDOnWire(t *testing.T) {
	var raw map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, "data: [DONE]\n\n")
	}))

	body, err := c.StreamChat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	body.Close()

	v, present := raw["thread_id"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestStreamChat_Unauthorized(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Not authenticated"}`)
	}))

	_, err := c.StreamChat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Not authenticated", se.Detail)
}

func TestStreamChat_EmptyBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.StreamChat(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestSubmitElicitation_DefaultsAction(t *testing.T) {
	var got ElicitationSubmission
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathElicitation, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, "data: [DONE]\n\n")
	}))

	body, err := c.SubmitElicitation(context.Background(), ElicitationSubmission{
		ToolCallID: "call_1",
		ToolName:   "create_trip",
		Data:       map[string]any{"destination": "Kyoto"},
	})
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, "accept", got.Action)
	assert.Equal(t, "Kyoto", got.Data["destination"])
}

func TestFetchThread(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathThreads+"th_1", r.URL.Path)
		io.WriteString(w, `{"data":{"conversation":{"id":"th_1","title":"Lisbon"},"messages":[
			{"role":"user","content":"plan it"},
			{"role":"assistant","content":"","tool_calls":[{"id":"c1","function":{"name":"create_trip","arguments":"{\"city\":\"Lisbon\"}"}}]},
			{"role":"tool","content":"{\"trip_id\":\"t1\"}","tool_call_id":"c1","name":"create_trip"}
		]}}`)
	}))

	hist, err := c.FetchThread(context.Background(), "th_1")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", hist.Conversation.Title)
	require.Len(t, hist.Messages, 3)
	require.NotNil(t, hist.Messages[1].ToolCalls[0].Function)
	assert.Equal(t, "create_trip", hist.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", hist.Messages[2].ToolCallID)
}

func TestFetchThread_NotFound(t *testing.T) {
	c := testClient(t, http.NotFoundHandler())

	_, err := c.FetchThread(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "request failed (500): boom", (&StatusError{Code: 500, Detail: "boom"}).Error())
	assert.Equal(t, "request failed (502)", (&StatusError{Code: 502}).Error())
	assert.Nil(t, (&StatusError{Code: 500}).Unwrap())
}

func TestExtractDetail(t *testing.T) {
	assert.Equal(t, "a", extractDetail([]byte(`{"detail":"a"}`)))
	assert.Equal(t, "b", extractDetail([]byte(`{"error":"b"}`)))
	assert.Equal(t, "c", extractDetail([]byte(`{"message":"c"}`)))
	assert.Equal(t, "", extractDetail([]byte(`{}`)))
	assert.Equal(t, "plain text", extractDetail([]byte("plain text\n")))
}
