package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
	"platen/internal/pipeline"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Validate and execute multi-stage pipelines",
	}

	pipelineCmd.AddCommand(newPipelineValidateCommand(ctx))
	pipelineCmd.AddCommand(newPipelineRunCommand(ctx))

	return pipelineCmd
}

func newPipelineValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline definition against the loaded projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PipelineValidate(ipc.FromPipelineConfig(cfg))
				if err != nil {
					return err
				}
				if !resp.Valid {
					return fmt.Errorf("pipeline invalid: %s", resp.Reason)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pipeline valid (%d stages)\n", len(cfg.Stages))
				return nil
			})
		},
	}
}

func newPipelineRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Execute a pipeline and stream its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PipelineStart(ipc.FromPipelineConfig(cfg))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pipeline run %s started (%d stages)\n", resp.RunID, len(cfg.Stages))
				return streamRunEvents(cmd, client, resp.RunID)
			})
		},
	}
}
