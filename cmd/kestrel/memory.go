package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMemoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the agent's long-term memory",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the memory document",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			doc, err := rt.store.LoadMemory()
			if err != nil {
				return err
			}
			if doc == "" {
				fmt.Println("memory is empty")
				return nil
			}
			fmt.Println(doc)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Erase the memory document",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			if err := rt.store.SaveMemory(""); err != nil {
				return err
			}
			fmt.Println("memory cleared")
			return nil
		},
	})

	return cmd
}
