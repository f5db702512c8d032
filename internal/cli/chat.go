package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/soyeahso/tripwatch/internal/api"
	"github.com/soyeahso/tripwatch/internal/chat"
	"github.com/soyeahso/tripwatch/internal/domain"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		threadID string
		replay   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the trip assistant",
		Long: "Start an interactive conversation. Lines starting with / are commands:\n" +
			"  /new              start a new thread\n" +
			"  /thread <id>      switch to an existing thread\n" +
			"  /retry            resend the last message\n" +
			"  /submit k=v ...   complete a pending form\n" +
			"  /decline          decline a pending form\n" +
			"  /quit             exit",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if replay != "" {
				return replayStream(ctx, cmd.OutOrStdout(), replay)
			}

			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			r := newREPL(client, cmd.OutOrStdout())

			if threadID != "" {
				if err := r.session.LoadThread(ctx, threadID); err != nil {
					return fmt.Errorf("loading thread: %w", err)
				}
				printMessages(r.out, r.session.Snapshot().Messages)
			}
			return r.loop(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "continue an existing thread")
	cmd.Flags().StringVar(&replay, "replay", "", "decode a recorded response stream and print the transcript")

	return cmd
}

// replayStream runs a recorded response through a session.
func replayStream(ctx context.Context, out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := chat.New(nil, log, chat.WithCallbacks(chat.Callbacks{
		OnElicitation: func(req domain.ElicitationRequest) { printElicitation(out, req) },
	}))
	tripID, err := s.ProcessElicitationResponse(ctx, f)
	printMessages(out, s.Snapshot().Messages)
	if tripID != "" {
		fmt.Fprintf(out, "\ntrip: %s\n", tripID)
	}
	return err
}

type repl struct {
	session *chat.Session
	out     io.Writer

	mu      sync.Mutex
	pending *domain.ElicitationRequest
}

func newREPL(client *api.Client, out io.Writer) *repl {
	r := &repl{out: out}
	r.session = chat.New(client, log,
		chat.WithNavigator(func() {
			fmt.Fprintln(out, "Your session has expired. Sign in again and restart tripwatch.")
		}),
		chat.WithCallbacks(chat.Callbacks{
			OnToolCall: func(tc domain.ToolCall) {
				fmt.Fprintf(out, "  [tool] %s\n", tc.Name)
			},
			OnElicitation: func(req domain.ElicitationRequest) {
				r.mu.Lock()
				r.pending = &req
				r.mu.Unlock()
				printElicitation(out, req)
			},
		}),
	)
	return r
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(r.out, "> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		quit, err := r.handle(ctx, strings.TrimSpace(sc.Text()))
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(r.out, "> ")
	}
	return sc.Err()
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.exchange(func() error { return r.session.SendMessage(ctx, line) })
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	switch name {
	case "quit", "exit":
		return true, nil
	case "new":
		r.session.StartNewThread()
		fmt.Fprintln(r.out, "Started a new thread.")
	case "thread":
		if rest == "" {
			return false, errors.New("usage: /thread <id>")
		}
		if err := r.session.SwitchThread(ctx, strings.TrimSpace(rest)); err != nil {
			return false, err
		}
		printMessages(r.out, r.session.Snapshot().Messages)
	case "retry":
		return false, r.exchange(func() error { return r.session.RetryLastMessage(ctx) })
	case "submit", "decline":
		return false, r.answer(ctx, name, rest)
	default:
		return false, fmt.Errorf("unknown command /%s", name)
	}
	return false, nil
}

// exchange runs one request and prints the messages it added.
func (r *repl) exchange(fn func() error) error {
	before := len(r.session.Snapshot().Messages)
	err := fn()
	msgs := r.session.Snapshot().Messages
	if before > len(msgs) {
		before = 0
	}
	shown := false
	for _, m := range msgs[before:] {
		if m.Role != domain.RoleUser {
			printMessage(r.out, m)
		}
		shown = shown || m.Error
	}
	if shown || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *repl) answer(ctx context.Context, action, args string) error {
	r.mu.Lock()
	req := r.pending
	r.pending = nil
	r.mu.Unlock()
	if req == nil {
		return errors.New("no form is pending")
	}

	sub := api.ElicitationSubmission{
		ToolCallID: req.ToolCallID,
		ToolName:   req.ToolName,
		Action:     "decline",
	}
	if action == "submit" {
		sub.Action = "accept"
		sub.Data = formData(req.Prefilled, args)
	}

	var tripID string
	err := r.exchange(func() error {
		var err error
		tripID, err = r.session.SubmitElicitation(ctx, sub)
		return err
	})
	if tripID != "" {
		fmt.Fprintf(r.out, "Trip saved: %s\n", tripID)
	}
	return err
}

// formData merges k=v pairs over the prefilled values.
func formData(prefilled map[string]any, args string) map[string]any {
	data := make(map[string]any, len(prefilled))
	for k, v := range prefilled {
		data[k] = v
	}
	for _, field := range strings.Fields(args) {
		k, v, ok := strings.Cut(field, "=")
		if ok && k != "" {
			data[k] = parseValue(v)
		}
	}
	return data
}

func printElicitation(out io.Writer, req domain.ElicitationRequest) {
	fmt.Fprintf(out, "  [form] %s needs more details", req.ToolName)
	if len(req.MissingFields) > 0 {
		fmt.Fprintf(out, ": %s", strings.Join(req.MissingFields, ", "))
	}
	fmt.Fprintln(out)
	if len(req.Prefilled) > 0 {
		keys := make([]string, 0, len(req.Prefilled))
		for k := range req.Prefilled {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "         %s = %v\n", k, req.Prefilled[k])
		}
	}
	fmt.Fprintln(out, "  Reply with /submit field=value ... or /decline")
}

func printMessages(out io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		printMessage(out, m)
	}
}

func printMessage(out io.Writer, m domain.Message) {
	switch {
	case m.Role == domain.RoleTool:
		name := ""
		if m.Result != nil {
			name = m.Result.Name
		}
		fmt.Fprintf(out, "  [result] %s %s\n", name, m.Content)
	case m.Error:
		fmt.Fprintf(out, "! %s\n", m.Content)
	default:
		if m.Content != "" {
			fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
		}
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(out, "  [call] %s %v\n", tc.Name, tc.Arguments)
		}
	}
}
