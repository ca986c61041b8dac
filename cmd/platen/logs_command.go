package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"platen/internal/ipc"
	"platen/internal/logs"
)

const logWaitMillis = 1000

// logTailer abstracts where log lines come from: the daemon over IPC when it
// is running, or the log file on disk when it is not.
type logTailer interface {
	Tail(ctx context.Context, offset int64, limit int, follow bool) ([]string, int64, error)
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			initialLimit := lines
			if initialLimit < 0 {
				initialLimit = 0
			}
			initialOffset := int64(-1)
			if initialLimit == 0 {
				initialOffset = 0
			}

			return ctx.withLogTailer(func(tailer logTailer) error {
				ctx := cmd.Context()
				offset := initialOffset
				limit := initialLimit
				printed := false

				for {
					tailLines, next, err := tailer.Tail(ctx, offset, limit, follow)
					if err != nil {
						return err
					}
					for _, line := range tailLines {
						fmt.Fprintln(cmd.OutOrStdout(), line)
						printed = true
					}
					offset = next
					limit = 0
					if !follow {
						if !printed {
							fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
						}
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					default:
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}

// withLogTailer runs fn against the daemon when it is reachable and otherwise
// against the configured log file directly, so logs remain inspectable after
// the daemon stops.
func (c *commandContext) withLogTailer(fn func(logTailer) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err == nil {
		defer func() { _ = client.Close() }()
		return fn(&logsIPCTailer{client: client})
	}
	if !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ECONNREFUSED) && !os.IsNotExist(err) {
		return wrapDialError(err, socket)
	}
	cfg, cfgErr := c.ensureConfig()
	if cfgErr != nil {
		return cfgErr
	}
	return fn(&logsFileTailer{path: cfg.LogFilePath()})
}

type logsIPCTailer struct {
	client *ipc.Client
}

func (t *logsIPCTailer) Tail(_ context.Context, offset int64, limit int, follow bool) ([]string, int64, error) {
	resp, err := t.client.LogTail(ipc.LogTailRequest{
		Offset:     offset,
		Limit:      limit,
		Follow:     follow,
		WaitMillis: logWaitMillis,
	})
	if err != nil {
		return nil, offset, fmt.Errorf("tail logs: %w", err)
	}
	if resp == nil {
		return nil, offset, errors.New("log tail response missing")
	}
	return resp.Lines, resp.Offset, nil
}

type logsFileTailer struct {
	path string
}

func (t *logsFileTailer) Tail(ctx context.Context, offset int64, limit int, follow bool) ([]string, int64, error) {
	opts := logs.Options{Offset: offset, Limit: limit}
	if follow {
		opts.Wait = logWaitMillis * time.Millisecond
	}
	result, err := logs.Read(ctx, t.path, opts)
	if err != nil {
		// Cancellation during a follow wait is a normal exit; the caller's
		// context check ends the loop.
		if ctx.Err() != nil {
			return nil, result.Offset, nil
		}
		return nil, offset, fmt.Errorf("read log file: %w", err)
	}
	return result.Lines, result.Offset, nil
}
