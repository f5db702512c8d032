// Package irc posts price alerts to IRC channels using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/tripwatch/internal/config"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/soyeahso/tripwatch/internal/notify"
	"github.com/soyeahso/tripwatch/internal/version"
)

// maxLineLen keeps PRIVMSG lines under the 512 byte protocol limit once the
// prefix, command and target are added.
const maxLineLen = 400

var errNotConnected = errors.New("irc: not connected")

// Notifier implements notify.Notifier for IRC.
type Notifier struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	lastErr string

	capsMu sync.RWMutex
	caps   multilineCaps
}

// New creates an IRC notifier from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Notifier {
	return &Notifier{cfg: cfg, log: log.Sub("irc")}
}

func (n *Notifier) Name() string { return "irc" }

// Status reports whether the client is connected.
func (n *Notifier) Status() notify.Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return notify.Status{
		Name:      "irc",
		Connected: n.client != nil && n.client.IsConnected(),
		LastError: n.lastErr,
	}
}

func (n *Notifier) port() int {
	if n.cfg.Port != 0 {
		return n.cfg.Port
	}
	if n.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (n *Notifier) clientConfig() girc.Config {
	cfg := girc.Config{
		Server:  n.cfg.Server,
		Port:    n.port(),
		Nick:    n.cfg.Nick,
		User:    n.cfg.Nick,
		Name:    "tripwatch price alerts",
		SSL:     n.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if n.cfg.Multiline {
		cfg.SupportedCaps = map[string][]string{capMultiline: nil}
	}
	if n.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: n.cfg.Server}
	}
	switch {
	case n.cfg.SASL && n.cfg.Password != "":
		cfg.SASL = &girc.SASLPlain{User: n.cfg.Nick, Pass: n.cfg.Password}
	case n.cfg.Password != "":
		cfg.ServerPass = n.cfg.Password
	}
	return cfg
}

// Start connects and blocks until ctx is done or the connection drops.
func (n *Notifier) Start(ctx context.Context) error {
	client := girc.New(n.clientConfig())
	client.Handlers.Add(girc.CONNECTED, n.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, n.onDisconnected)
	client.Handlers.Add(girc.CAP, n.onCAP)
	client.Handlers.Add("FAIL", n.onFail)

	n.mu.Lock()
	n.client = client
	n.lastErr = ""
	n.mu.Unlock()

	n.log.Info().
		Str("server", n.cfg.Server).
		Int("port", n.port()).
		Str("nick", n.cfg.Nick).
		Strs("channels", n.cfg.Channels).
		Bool("tls", n.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case err := <-errCh:
		if err != nil {
			n.mu.Lock()
			n.lastErr = err.Error()
			n.mu.Unlock()
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		<-errCh
		return ctx.Err()
	}
}

// Stop sends QUIT if connected.
func (n *Notifier) Stop(context.Context) error {
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	if client != nil && client.IsConnected() {
		n.log.Info().Msg("disconnecting from IRC")
		client.Quit("tripwatch shutting down")
	}
	return nil
}

// Notify posts the alert to every configured channel.
func (n *Notifier) Notify(_ context.Context, u domain.PriceUpdate) error {
	n.mu.RLock()
	client := n.client
	n.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return errNotConnected
	}
	if len(n.cfg.Channels) == 0 {
		return errors.New("irc: no channels configured")
	}

	body := notify.FormatUpdate(u)
	if !u.UpdatedAt.IsZero() {
		body += "\nas of " + u.UpdatedAt.UTC().Format(time.RFC1123)
	}
	for _, target := range n.cfg.Channels {
		n.send(client, target, body)
	}
	return nil
}

func (n *Notifier) send(client *girc.Client, target, body string) {
	if strings.Contains(body, "\n") && n.cfg.Multiline && client.HasCapability(capMultiline) {
		n.capsMu.RLock()
		caps := n.caps
		n.capsMu.RUnlock()

		for _, lines := range planBatches(strings.Split(body, "\n"), caps) {
			for _, ev := range batchEvents(newBatchID(), target, lines, maxLineLen) {
				client.Send(ev)
			}
		}
		n.log.Debug().Str("to", target).Msg("sent IRC multiline batch")
		return
	}

	lines := splitMessage(body, maxLineLen)
	for _, line := range lines {
		client.Cmd.Message(target, line)
	}
	n.log.Debug().Str("to", target).Int("lines", len(lines)).Msg("sent IRC message")
}

func (n *Notifier) onConnected(c *girc.Client, _ girc.Event) {
	n.log.Info().Str("nick", c.GetNick()).Msg("connected to IRC")
	for _, ch := range n.cfg.Channels {
		n.log.Debug().Str("channel", ch).Msg("joining channel")
		c.Cmd.Join(ch)
	}
}

func (n *Notifier) onDisconnected(_ *girc.Client, _ girc.Event) {
	n.log.Warn().Msg("disconnected from IRC")
}

// onCAP records draft/multiline limits from CAP LS, NEW or ACK.
func (n *Notifier) onCAP(_ *girc.Client, e girc.Event) {
	if len(e.Params) < 3 {
		return
	}
	switch e.Params[1] {
	case "LS", "NEW", "ACK":
	default:
		return
	}

	caps, found := capsFromList(e.Last())
	if !found {
		return
	}

	n.capsMu.Lock()
	n.caps = caps
	n.capsMu.Unlock()

	n.log.Info().
		Int("maxBytes", caps.maxBytes).
		Int("maxLines", caps.maxLines).
		Msg("draft/multiline capability detected")
}

func (n *Notifier) onFail(_ *girc.Client, e girc.Event) {
	if code, ok := multilineFailCode(e); ok {
		n.log.Warn().Str("code", code).Str("detail", e.Last()).Msg("multiline batch rejected by server")
	}
}

// splitMessage breaks text into PRIVMSG-sized lines. Each newline starts a
// new line and lines longer than maxLen are cut at the byte boundary.
func splitMessage(text string, maxLen int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			out = append(out, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
