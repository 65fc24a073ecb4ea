package startcmder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threadrelay/pkg/chat"
)

const startLongDesc string = `Begin a conversation on a running relay server.

Prints the thread id to pass to the chat command.

Examples:
  threadrelay start http://localhost:8080
  threadrelay start --prefix /pv https://relay.example.com`

const startShortDesc string = "Begin a conversation on a relay server"

type startCommander struct {
	prefix  string
	timeout time.Duration
}

func NewStartCmd() *cobra.Command {
	cmder := &startCommander{}

	cmd := &cobra.Command{
		Use:   "start <server-url>",
		Short: startShortDesc,
		Long:  startLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.prefix, "prefix", "p", "", "Route prefix of the relay server")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 30*time.Second, "HTTP timeout")

	return cmd
}

func (c *startCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	client := chat.NewClient(serverURL, c.prefix, &http.Client{Timeout: c.timeout})

	threadID, err := client.Start(ctx)
	if err != nil {
		return fmt.Errorf("could not start conversation: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), threadID)
	return nil
}
