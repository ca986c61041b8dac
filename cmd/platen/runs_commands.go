package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded script and pipeline runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsClearCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(func(api runsAPI) error {
				runs, err := api.List(cmd.Context(), limit, statuses)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(stdout, "No runs recorded")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Kind", "Label", "Status", "Started", "Duration"},
					buildRunListRows(runs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(func(api runsAPI) error {
				run, err := api.Show(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRun(cmd, run)
				return nil
			})
		},
	}
}

func printRun(cmd *cobra.Command, run ipc.Run) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "ID:        %s\n", run.ID)
	fmt.Fprintf(stdout, "Kind:      %s\n", run.Kind)
	fmt.Fprintf(stdout, "Label:     %s\n", run.Label)
	if run.StageCount > 1 {
		fmt.Fprintf(stdout, "Stages:    %d\n", run.StageCount)
	}
	fmt.Fprintf(stdout, "Status:    %s\n", formatStatusLabel(run.Status))
	fmt.Fprintf(stdout, "Exit code: %d\n", run.ExitCode)
	if run.ErrorMessage != "" {
		fmt.Fprintf(stdout, "Error:     %s\n", run.ErrorMessage)
	}
	if run.OutputDir != "" {
		fmt.Fprintf(stdout, "Output:    %s\n", run.OutputDir)
	}
	if run.ProgressStage != "" || run.ProgressMessage != "" {
		fmt.Fprintf(stdout, "Progress:  %.1f%% %s %s\n", run.ProgressPercent, run.ProgressStage, run.ProgressMessage)
	}
	created := run.CreatedAt
	fmt.Fprintf(stdout, "Created:   %s\n", formatDisplayTime(&created))
	fmt.Fprintf(stdout, "Started:   %s\n", formatDisplayTime(run.StartedAt))
	fmt.Fprintf(stdout, "Finished:  %s\n", formatDisplayTime(run.FinishedAt))
	fmt.Fprintf(stdout, "Duration:  %s\n", formatRunDuration(run))
}

func newRunsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished runs from history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(func(api runsAPI) error {
				removed, err := api.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished runs\n", removed)
				return nil
			})
		},
	}
}
