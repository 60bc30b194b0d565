package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kestrel-agent/kestrel/internal/channel"
	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

func newChatCmd(configPath *string) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			if err := rt.cfg.ValidateModel(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			cli := channel.NewCLI(os.Stdin, os.Stdout)

			if message != "" {
				rt.loop.HandleInbound(ctx, cli, interfaces.Inbound{
					Channel:  "cli",
					SenderID: "local",
					Content:  message,
				})
				if cli.Streaming() {
					fmt.Println()
				}
				return nil
			}

			return cli.Run(ctx, func(ctx context.Context, in interfaces.Inbound) {
				rt.loop.HandleInbound(ctx, cli, in)
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}
