package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"platen/internal/ipc"
)

// renderRunEvent formats one journaled worker event as a terminal line.
// Pipeline events carry a stage prefix so interleaved output stays
// attributable; single-script events print bare.
func renderRunEvent(event ipc.RunEvent) string {
	var b strings.Builder
	if event.StageIndex >= 0 {
		if event.PluginID != "" {
			fmt.Fprintf(&b, "[%d:%s] ", event.StageIndex+1, event.PluginID)
		} else {
			fmt.Fprintf(&b, "[%d] ", event.StageIndex+1)
		}
	}

	switch event.Kind {
	case "start":
		if event.Total > 0 {
			fmt.Fprintf(&b, "started (%d units)", event.Total)
		} else {
			b.WriteString("started")
		}
	case "stage-start":
		fmt.Fprintf(&b, "processing %s", event.Stage)
	case "stage-complete":
		fmt.Fprintf(&b, "finished %s", event.Stage)
	case "progress":
		if event.Percent >= 0 {
			fmt.Fprintf(&b, "%5.1f%%", event.Percent)
		} else {
			b.WriteString("progress")
		}
		if event.Total > 0 {
			fmt.Fprintf(&b, " (%d/%d)", event.Current, event.Total)
		}
		if event.Message != "" {
			fmt.Fprintf(&b, " %s", event.Message)
		}
	case "complete":
		b.WriteString("completed")
		if event.BytesSaved > 0 {
			fmt.Fprintf(&b, " (saved %s)", humanize.IBytes(uint64(event.BytesSaved)))
		}
		if event.Errors > 0 {
			fmt.Fprintf(&b, " with %d errors", event.Errors)
		}
	case "error":
		fmt.Fprintf(&b, "error: %s", event.Message)
	case "raw":
		b.WriteString(event.Raw)
	default:
		if event.Raw != "" {
			b.WriteString(event.Raw)
		} else {
			b.WriteString(event.Kind)
		}
	}
	return b.String()
}

// streamRunEvents long-polls the run's event journal and prints each event
// until the daemon reports the run finished, then prints the recorded
// outcome.
func streamRunEvents(cmd *cobra.Command, client *ipc.Client, runID string) error {
	stdout := cmd.OutOrStdout()
	var afterSeq int64

	for {
		resp, err := client.RunEvents(ipc.RunEventsRequest{
			RunID:      runID,
			AfterSeq:   afterSeq,
			WaitMillis: 1000,
		})
		if err != nil {
			return fmt.Errorf("stream run events: %w", err)
		}
		for _, event := range resp.Events {
			fmt.Fprintln(stdout, renderRunEvent(event))
			afterSeq = event.Seq
		}
		if resp.Done {
			break
		}
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}

	show, err := client.RunsShow(runID)
	if err != nil {
		return fmt.Errorf("fetch run outcome: %w", err)
	}
	return printRunOutcome(cmd, show.Run)
}

// printRunOutcome summarizes a finished run. Failed and cancelled runs exit
// non-zero through the returned error so scripts can branch on them.
func printRunOutcome(cmd *cobra.Command, run ipc.Run) error {
	stdout := cmd.OutOrStdout()
	switch run.Status {
	case "completed":
		fmt.Fprintf(stdout, "Run %s completed\n", run.ID)
		return nil
	case "cancelled":
		return fmt.Errorf("run %s cancelled", run.ID)
	case "failed":
		if run.ErrorMessage != "" {
			return fmt.Errorf("run %s failed (exit code %d): %s", run.ID, run.ExitCode, run.ErrorMessage)
		}
		return fmt.Errorf("run %s failed (exit code %d)", run.ID, run.ExitCode)
	default:
		fmt.Fprintf(stdout, "Run %s %s\n", run.ID, run.Status)
		return nil
	}
}
