package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- NormalizeArguments tests ---

func TestNormalizeArguments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"json string", `"{\"destination\":\"Lisbon\",\"nights\":4}"`, map[string]any{"destination": "Lisbon", "nights": float64(4)}},
		{"object", `{"destination":"Lisbon"}`, map[string]any{"destination": "Lisbon"}},
		{"absent", ``, map[string]any{}},
		{"null", `null`, map[string]any{}},
		{"empty string", `""`, map[string]any{}},
		{"garbage string", `"not json"`, map[string]any{}},
		{"array", `[1,2]`, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeArguments(json.RawMessage(tt.raw))
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewToolCall(t *testing.T) {
	tc := NewToolCall("call_1", "", nil)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "", tc.Name)
	assert.Empty(t, tc.Arguments)
	assert.NotNil(t, tc.Arguments)
}

// --- ToolResult tests ---

func TestToolResultTripID(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"snake case", map[string]any{"trip_id": "t-1"}, "t-1"},
		{"camel case", map[string]any{"tripId": "t-2"}, "t-2"},
		{"nested trip", map[string]any{"trip": map[string]any{"id": "t-3"}}, "t-3"},
		{"missing", map[string]any{"ok": true}, ""},
		{"not an object", "created", ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToolResult{Result: tt.result}.TripID())
		})
	}
}

// --- Message tests ---

func TestMessageClone(t *testing.T) {
	orig := Message{
		ID:        "m1",
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "call_1", Name: "create_trip"}},
		Result:    &ToolResult{ToolCallID: "call_1"},
	}

	cp := orig.Clone()
	cp.ToolCalls[0].Name = "changed"
	cp.Result.ToolCallID = "changed"

	assert.Equal(t, "create_trip", orig.ToolCalls[0].Name)
	assert.Equal(t, "call_1", orig.Result.ToolCallID)
}

func TestMessageJSONRoundTripOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Message{ID: "m1", Role: RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "toolCalls")
	assert.NotContains(t, string(data), "toolResult")
	assert.NotContains(t, string(data), "error")
}

// --- ConnectionState tests ---

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}

func TestServerError(t *testing.T) {
	var err error = &ServerError{Message: "poller unavailable"}
	assert.Equal(t, "server error: poller unavailable", err.Error())
}

// --- PriceUpdate tests ---

func TestPriceUpdateUnmarshal_TimestampLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2025-01-15T10:30:00Z"`, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)},
		{`"2025-01-15T10:30:00.123456"`, time.Date(2025, 1, 15, 10, 30, 0, 123456000, time.UTC)},
		{`"2025-01-15 10:30:00"`, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)},
		{`"soon"`, time.Time{}},
		{`null`, time.Time{}},
		{`1736937000`, time.Time{}},
	}
	for _, tt := range tests {
		var u PriceUpdate
		err := json.Unmarshal([]byte(`{"trip_id":"t1","total_price":"$5","updated_at":`+tt.raw+`}`), &u)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, "t1", u.TripID, tt.raw)
		assert.Equal(t, "$5", u.TotalPrice, tt.raw)
		assert.True(t, tt.want.Equal(u.UpdatedAt), "%s: got %v", tt.raw, u.UpdatedAt)
	}
}

func TestPriceUpdate_JSONRoundTrip(t *testing.T) {
	in := PriceUpdate{TripID: "t1", TripName: "Lisbon", UpdatedAt: time.Date(2025, 1, 15, 10, 30, 0, 5, time.UTC)}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out PriceUpdate
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestPriceUpdateUnmarshal_Malformed(t *testing.T) {
	var u PriceUpdate
	assert.Error(t, json.Unmarshal([]byte(`{"trip_id":5}`), &u))
}
