package chatcmder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threadrelay/pkg/chat"
)

const chatLongDesc string = `Send a message through a running relay server and print the reply.

Without --thread a new conversation is started first and its id is
printed to stderr so follow-up messages can reuse it.

Examples:
  threadrelay chat http://localhost:8080 "Ciao"
  threadrelay chat --thread thread_abc --prefix /pv https://relay.example.com "Come stai?"`

const chatShortDesc string = "Send a message through a relay server"

type chatCommander struct {
	threadID string
	prefix   string
	timeout  time.Duration
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat <server-url> <message...>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.threadID, "thread", "t", "", "Thread id from a previous start")
	cmd.Flags().StringVarP(&cmder.prefix, "prefix", "p", "", "Route prefix of the relay server")
	// Exchanges can poll for close to a minute before replying.
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 2*time.Minute, "HTTP timeout")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, serverURL, message string) error {
	client := chat.NewClient(serverURL, c.prefix, &http.Client{Timeout: c.timeout})

	threadID := c.threadID
	if threadID == "" {
		var err error
		threadID, err = client.Start(ctx)
		if err != nil {
			return fmt.Errorf("could not start conversation: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", threadID)
	}

	resp, err := client.Send(ctx, threadID, message)
	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
	return nil
}
