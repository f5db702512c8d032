package domain

import (
	"encoding/json"
	"time"
)

// PriceUpdate is a push notification that a tracked trip was re-priced.
// Consumers key updates by TripID; a newer update replaces an older one.
type PriceUpdate struct {
	TripID      string    `json:"trip_id"`
	TripName    string    `json:"trip_name"`
	FlightPrice string    `json:"flight_price,omitempty"`
	HotelPrice  string    `json:"hotel_price,omitempty"`
	TotalPrice  string    `json:"total_price,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnmarshalJSON accepts updated_at in any layout ParseTimestamp knows. An
// unreadable timestamp leaves UpdatedAt zero instead of failing the update.
func (u *PriceUpdate) UnmarshalJSON(data []byte) error {
	type plain PriceUpdate
	var w struct {
		plain
		UpdatedAt json.RawMessage `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*u = PriceUpdate(w.plain)

	var s string
	if json.Unmarshal(w.UpdatedAt, &s) == nil {
		u.UpdatedAt, _ = ParseTimestamp(s)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
}

// ParseTimestamp parses the timestamp formats the service emits. Values
// without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ConnectedInfo is the payload of the push channel's "connected" event.
type ConnectedInfo struct {
	SessionID         string `json:"session_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	HeartbeatInterval int    `json:"heartbeat_interval,omitempty"`
	PollInterval      int    `json:"poll_interval,omitempty"`
	ServerTime        string `json:"timestamp,omitempty"`
}

// Heartbeat is the payload of the push channel's keepalive event.
type Heartbeat struct {
	Timestamp string `json:"timestamp"`
}

// ServerError is an error reported by the server over the push channel.
type ServerError struct {
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// ConnectionState is the lifecycle state of the push channel.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
