package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 30 * time.Second

// Command runs a shell command for an event. The payload is written to the
// command's stdin as JSON and the event name is exported as TRIPWATCH_EVENT.
type Command struct {
	Name    string
	Run     string
	Timeout time.Duration
	Shell   string // defaults to "sh"
}

// Handler returns c as a hook Handler.
func (c Command) Handler() Handler {
	return func(ctx context.Context, p Payload) error {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultCommandTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		shell := c.Shell
		if shell == "" {
			shell = "sh"
		}

		cmd := exec.CommandContext(ctx, shell, "-c", c.Run)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "TRIPWATCH_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		// Children of the shell can hold stderr open after a kill.
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %s timed out after %s", c.Name, timeout)
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %s: %w: %s", c.Name, err, msg)
			}
			return fmt.Errorf("hook %s: %w", c.Name, err)
		}
		return nil
	}
}

// Register adds c to m for each of events.
func (c Command) Register(m *Manager, events ...string) {
	for _, event := range events {
		m.On(event, c.Name, c.Handler())
	}
}
