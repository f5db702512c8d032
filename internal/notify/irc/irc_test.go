package irc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/tripwatch/internal/config"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestNew(t *testing.T) {
	n := New(config.IRCConfig{Server: "irc.libera.chat", Nick: "tw"}, testLogger())
	assert.Equal(t, "irc", n.Name())

	status := n.Status()
	assert.Equal(t, "irc", status.Name)
	assert.False(t, status.Connected)
	assert.Empty(t, status.LastError)
}

func TestPortDefaults(t *testing.T) {
	assert.Equal(t, 6697, New(config.IRCConfig{UseTLS: true}, testLogger()).port())
	assert.Equal(t, 6667, New(config.IRCConfig{}, testLogger()).port())
	assert.Equal(t, 7000, New(config.IRCConfig{Port: 7000, UseTLS: true}, testLogger()).port())
}

func TestClientConfig(t *testing.T) {
	t.Run("sasl", func(t *testing.T) {
		cfg := New(config.IRCConfig{
			Server: "irc.example.org", Nick: "tw", Password: "pw", SASL: true, UseTLS: true,
		}, testLogger()).clientConfig()

		require.NotNil(t, cfg.SASL)
		assert.Empty(t, cfg.ServerPass)
		require.NotNil(t, cfg.TLSConfig)
		assert.Equal(t, "irc.example.org", cfg.TLSConfig.ServerName)
		assert.Nil(t, cfg.SupportedCaps)
	})

	t.Run("server password", func(t *testing.T) {
		cfg := New(config.IRCConfig{Nick: "tw", Password: "pw"}, testLogger()).clientConfig()
		assert.Nil(t, cfg.SASL)
		assert.Equal(t, "pw", cfg.ServerPass)
		assert.Nil(t, cfg.TLSConfig)
	})

	t.Run("multiline", func(t *testing.T) {
		cfg := New(config.IRCConfig{Nick: "tw", Multiline: true}, testLogger()).clientConfig()
		assert.Contains(t, cfg.SupportedCaps, capMultiline)
	})
}

func TestNotify_NotConnected(t *testing.T) {
	n := New(config.IRCConfig{Channels: []string{"#deals"}}, testLogger())
	err := n.Notify(context.Background(), domain.PriceUpdate{TripID: "t1"})
	assert.ErrorIs(t, err, errNotConnected)
}

func TestStart_CancelReturns(t *testing.T) {
	// Nothing listens on port 1, so Connect fails or ctx wins.
	n := New(config.IRCConfig{Server: "127.0.0.1", Port: 1, Nick: "tw"}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := n.Start(ctx)
	require.Error(t, err)
	assert.NoError(t, n.Stop(context.Background()))
}

func TestOnCAP_RecordsLimits(t *testing.T) {
	n := New(config.IRCConfig{}, testLogger())
	n.onCAP(nil, girc.Event{
		Command: girc.CAP,
		Params:  []string{"*", "LS", "sasl draft/multiline=max-bytes=4096,max-lines=24 echo-message"},
	})
	assert.Equal(t, multilineCaps{maxBytes: 4096, maxLines: 24}, n.caps)

	n.onCAP(nil, girc.Event{Command: girc.CAP, Params: []string{"*", "DEL", "draft/multiline=max-bytes=1"}})
	assert.Equal(t, 4096, n.caps.maxBytes)
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"newlines", "a\nb", 10, []string{"a", "b"}},
		{"blank lines dropped", "a\n\nb", 10, []string{"a", "b"}},
		{"long line", strings.Repeat("x", 25), 10, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), "xxxxx"}},
		{"empty", "", 10, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitMessage(tt.in, tt.max))
		})
	}
}
