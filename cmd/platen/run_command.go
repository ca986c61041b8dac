package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var scriptArgs []string
	var follow bool

	cmd := &cobra.Command{
		Use:   "run <project-id> [script]",
		Short: "Execute a project worker script",
		Long: "Execute a worker script from a loaded project. Without a script argument the\n" +
			"project's first entry point runs. Script arguments are passed through with\n" +
			"repeated --arg flags.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plugin := strings.TrimSpace(args[0])
			script := ""
			if len(args) > 1 {
				script = strings.TrimSpace(args[1])
			}

			return ctx.withClient(func(client *ipc.Client) error {
				if follow {
					resp, err := client.RunStart(ipc.RunStartRequest{
						Plugin: plugin,
						Script: script,
						Args:   scriptArgs,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Run %s started\n", resp.RunID)
					return streamRunEvents(cmd, client, resp.RunID)
				}

				resp, err := client.RunScript(ipc.RunScriptRequest{
					Plugin: plugin,
					Script: script,
					Args:   scriptArgs,
				})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Stdout != "" {
					fmt.Fprint(stdout, resp.Stdout)
					if !strings.HasSuffix(resp.Stdout, "\n") {
						fmt.Fprintln(stdout)
					}
				}
				if resp.Stderr != "" {
					stderr := cmd.ErrOrStderr()
					fmt.Fprint(stderr, resp.Stderr)
					if !strings.HasSuffix(resp.Stderr, "\n") {
						fmt.Fprintln(stderr)
					}
				}
				switch {
				case resp.State == "cancelled":
					return fmt.Errorf("script cancelled")
				case resp.State == "completed" && resp.ExitCode == 0:
					fmt.Fprintln(stdout, "Script completed")
					return nil
				default:
					return fmt.Errorf("script failed (exit code %d)", resp.ExitCode)
				}
			})
		},
	}

	cmd.Flags().StringArrayVar(&scriptArgs, "arg", nil, "Argument passed to the worker script (repeatable)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress events instead of waiting for buffered output")
	return cmd
}
