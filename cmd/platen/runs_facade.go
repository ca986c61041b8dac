package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"platen/internal/history"
	"platen/internal/ipc"
)

// runsAPI abstracts run-history access so the runs commands work both against
// a live daemon and, when none is running, directly against the database.
type runsAPI interface {
	List(ctx context.Context, limit int, statuses []string) ([]ipc.Run, error)
	Show(ctx context.Context, id string) (ipc.Run, error)
	Clear(ctx context.Context) (int, error)
}

// withRuns dials the daemon and falls back to the history store when the
// socket is absent or refusing connections.
func (c *commandContext) withRuns(fn func(runsAPI) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err == nil {
		defer client.Close()
		return fn(&runsIPCAdapter{client: client})
	}
	if !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ECONNREFUSED) && !os.IsNotExist(err) {
		return wrapDialError(err, socket)
	}

	cfg, cfgErr := c.ensureConfig()
	if cfgErr != nil {
		return cfgErr
	}
	store, openErr := history.Open(cfg)
	if openErr != nil {
		return fmt.Errorf("open run history: %w", openErr)
	}
	defer store.Close()
	return fn(&runsStoreAdapter{store: store})
}

// --- IPC adapter ---

type runsIPCAdapter struct {
	client *ipc.Client
}

func (a *runsIPCAdapter) List(_ context.Context, limit int, statuses []string) ([]ipc.Run, error) {
	resp, err := a.client.RunsList(limit, statuses)
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (a *runsIPCAdapter) Show(_ context.Context, id string) (ipc.Run, error) {
	resp, err := a.client.RunsShow(id)
	if err != nil {
		return ipc.Run{}, err
	}
	return resp.Run, nil
}

func (a *runsIPCAdapter) Clear(_ context.Context) (int, error) {
	resp, err := a.client.RunsClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// --- Store adapter ---

type runsStoreAdapter struct {
	store *history.Store
}

func (a *runsStoreAdapter) List(ctx context.Context, limit int, statuses []string) ([]ipc.Run, error) {
	filters := make([]history.Status, 0, len(statuses))
	for _, raw := range statuses {
		status, err := history.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		filters = append(filters, status)
	}
	runs, err := a.store.List(ctx, limit, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, *ipc.FromRun(run))
	}
	return out, nil
}

func (a *runsStoreAdapter) Show(ctx context.Context, id string) (ipc.Run, error) {
	run, err := a.store.Get(ctx, id)
	if err != nil {
		return ipc.Run{}, err
	}
	return *ipc.FromRun(run), nil
}

func (a *runsStoreAdapter) Clear(ctx context.Context) (int, error) {
	return a.store.Clear(ctx)
}
