package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Cancelled {
					fmt.Fprintln(stdout, "No active run")
					return nil
				}
				fmt.Fprintf(stdout, "Cancelled run %s\n", resp.RunID)
				return nil
			})
		},
	}
}
