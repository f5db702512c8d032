package cli

import (
	"errors"
	"fmt"

	"github.com/soyeahso/tripwatch/internal/chat"
	"github.com/spf13/cobra"
)

func newThreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Inspect conversation threads",
	}
	cmd.AddCommand(newThreadShowCmd())
	return cmd
}

func newThreadShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the transcript of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}

			s := chat.New(client, log)
			if err := s.LoadThread(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, chat.ErrConversationNotFound) {
					return fmt.Errorf("thread %s not found", args[0])
				}
				return err
			}
			printMessages(cmd.OutOrStdout(), s.Snapshot().Messages)
			return nil
		},
	}
}
