package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect the loaded image-processing projects",
	}

	projectsCmd.AddCommand(newProjectsListCommand(ctx))
	projectsCmd.AddCommand(newProjectsShowCommand(ctx))
	projectsCmd.AddCommand(newProjectsReloadCommand(ctx))

	return projectsCmd
}

func newProjectsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Projects) == 0 {
					fmt.Fprintln(stdout, "No projects found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Projects))
				for _, p := range resp.Projects {
					rows = append(rows, []string{
						p.ID,
						p.DisplayName,
						yesNo(p.PipelineCapable),
						fmt.Sprintf("%d", len(p.EntryPoints)),
						p.Description,
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Pipeline", "Scripts", "Description"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				if resp.Stale {
					fmt.Fprintln(stdout, "Project roots changed since load; run `platen projects reload`")
				}
				return nil
			})
		},
	}
}

func newProjectsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show one project in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectShow(args[0])
				if err != nil {
					return err
				}
				printProject(cmd, resp.Project)
				return nil
			})
		},
	}
}

func printProject(cmd *cobra.Command, p ipc.Project) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "ID:           %s\n", p.ID)
	fmt.Fprintf(stdout, "Name:         %s\n", p.DisplayName)
	if p.Description != "" {
		fmt.Fprintf(stdout, "Description:  %s\n", p.Description)
	}
	fmt.Fprintf(stdout, "Directory:    %s\n", p.Dir)
	fmt.Fprintf(stdout, "Entry points: %s\n", strings.Join(p.EntryPoints, ", "))
	if p.Requirements != "" {
		fmt.Fprintf(stdout, "Requirements: %s\n", p.Requirements)
	}
	fmt.Fprintf(stdout, "Pipeline:     %s\n", yesNo(p.PipelineCapable))
	if len(p.Parameters) == 0 {
		return
	}
	rows := make([][]string, 0, len(p.Parameters))
	for _, param := range p.Parameters {
		def := param.Default
		if !param.HasDefault {
			def = "-"
		}
		rows = append(rows, []string{
			param.Name,
			param.Flag,
			param.Type,
			def,
			yesNo(param.Required),
		})
	}
	fmt.Fprintln(stdout, "Parameters:")
	table := renderTable(
		[]string{"Name", "Flag", "Type", "Default", "Required"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
	fmt.Fprintln(stdout, table)
}

func newProjectsReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rescan the project roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectReload()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reloaded %d projects\n", resp.Count)
				return nil
			})
		},
	}
}
