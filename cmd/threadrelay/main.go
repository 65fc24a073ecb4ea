package main

import (
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/threadrelay/cmd/threadrelay/chat"
	servecmder "github.com/papercomputeco/threadrelay/cmd/threadrelay/serve"
	startcmder "github.com/papercomputeco/threadrelay/cmd/threadrelay/start"
)

const rootLongDesc string = `threadrelay relays chat widget traffic to a hosted assistant.

It exposes two routes, start and chat, and drives the provider's
thread, run, and message protocol on the caller's behalf so the
browser never sees provider credentials.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "threadrelay",
		Short:         "Chat relay for hosted assistants",
		Long:          rootLongDesc,
		SilenceUsage: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(startcmder.NewStartCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
