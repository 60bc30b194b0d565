package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "Show recent conversation history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			session := "cli:local"
			if len(args) == 1 {
				session = args[0]
			}
			msgs, err := rt.store.LoadRecentHistory(session, tail)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("no history for", session)
				return nil
			}
			for _, msg := range msgs {
				fmt.Printf("[%s] %-9s %s\n",
					msg.Timestamp.Local().Format("2006-01-02 15:04"), msg.Role, msg.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 20, "number of messages to show")
	return cmd
}
