package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/tmaxmax/go-sse"
)

// Push channel event names.
const (
	EventConnected   = "connected"
	EventPriceUpdate = "price_update"
	EventHeartbeat   = "heartbeat"
	EventError       = "error"
	EventMessage     = "message"
)

// errStreamEnded is reported when the server closes the push stream.
var errStreamEnded = errors.New("push stream closed by server")

// Event is one server push. Type is EventMessage when the transport could
// not tell which event the server sent.
type Event struct {
	Type string
	Data []byte
}

// Transport opens push connections.
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// Conn is one open push connection.
type Conn interface {
	// Read delivers events to fn until the connection fails or is closed.
	// It never returns nil.
	Read(fn func(Event)) error
	Close() error
}

// Intervals are passed to the server when the connection opens.
type Intervals struct {
	Heartbeat time.Duration
	Poll      time.Duration
}

func (iv Intervals) query() url.Values {
	q := url.Values{}
	if iv.Heartbeat > 0 {
		q.Set("heartbeat_interval", strconv.Itoa(int(iv.Heartbeat/time.Second)))
	}
	if iv.Poll > 0 {
		q.Set("poll_interval", strconv.Itoa(int(iv.Poll/time.Second)))
	}
	return q
}

// SSETransport reads the push channel as a server-sent event stream.
type SSETransport struct {
	client    *api.Client
	path      string
	intervals Intervals
}

// NewSSETransport creates a transport for the price stream.
func NewSSETransport(client *api.Client, iv Intervals) *SSETransport {
	return &SSETransport{client: client, path: api.PathPriceStream, intervals: iv}
}

// Open issues the credentialed GET and returns once response headers arrive.
func (t *SSETransport) Open(ctx context.Context) (Conn, error) {
	resp, err := t.client.Get(ctx, t.path, t.intervals.query(), "text/event-stream")
	if err != nil {
		return nil, err
	}
	if err := api.CheckResponse(resp); err != nil {
		return nil, err
	}
	return &sseConn{resp: resp}, nil
}

type sseConn struct {
	resp *http.Response
	once sync.Once
}

func (c *sseConn) Read(fn func(Event)) error {
	for ev, err := range sse.Read(c.resp.Body, nil) {
		if err != nil {
			return fmt.Errorf("reading push stream: %w", err)
		}
		typ := ev.Type
		if typ == "" {
			typ = EventMessage
		}
		fn(Event{Type: typ, Data: []byte(ev.Data)})
	}
	return errStreamEnded
}

func (c *sseConn) Close() error {
	var err error
	c.once.Do(func() { err = c.resp.Body.Close() })
	return err
}

// WebSocketTransport reads the push channel over a WebSocket. Frames shaped
// {"event": name, "payload": {...}} keep their name; any other frame is a
// generic message event carrying the whole frame.
type WebSocketTransport struct {
	client    *api.Client
	path      string
	intervals Intervals
	dialer    *websocket.Dialer
}

// NewWebSocketTransport creates a transport for the price stream.
func NewWebSocketTransport(client *api.Client, iv Intervals) *WebSocketTransport {
	return &WebSocketTransport{
		client:    client,
		path:      api.PathPriceStream,
		intervals: iv,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
			Jar:              client.Jar(),
		},
	}
}

// Open dials the server.
func (t *WebSocketTransport) Open(ctx context.Context) (Conn, error) {
	u := t.client.WebSocketURL(t.path, t.intervals.query())
	ws, resp, err := t.dialer.DialContext(ctx, u.String(), t.client.Header())
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &api.StatusError{Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("dialing push channel: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

type wsFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type wsConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) Read(fn func(Event)) error {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errStreamEnded
			}
			return fmt.Errorf("reading push channel: %w", err)
		}
		fn(frameEvent(msg))
	}
}

func frameEvent(msg []byte) Event {
	var f wsFrame
	if err := json.Unmarshal(msg, &f); err == nil && f.Event != "" && len(f.Payload) > 0 {
		return Event{Type: f.Event, Data: f.Payload}
	}
	return Event{Type: EventMessage, Data: msg}
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
