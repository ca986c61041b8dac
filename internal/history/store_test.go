package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"platen/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := NewRun("run-1", KindScript, "deskew/deskew.py", 1)
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Kind != KindScript {
		t.Fatalf("kind = %q, want %q", got.Kind, KindScript)
	}
	if got.Label != "deskew/deskew.py" {
		t.Fatalf("label = %q", got.Label)
	}
	if got.Status != StatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Fatal("expected no start or finish timestamps on a pending run")
	}
}

func TestGetMissingRunReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePersistsProgressAndTerminalState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := NewRun("run-2", KindPipeline, "deskew, pagesplit", 2)
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	run.MarkStarted()
	run.SetProgress("Deskew", "page 3", 42.5)
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	got, err := store.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("status = %q, want running", got.Status)
	}
	if got.ProgressStage != "Deskew" || got.ProgressPercent != 42.5 {
		t.Fatalf("progress = %q %.1f, want Deskew 42.5", got.ProgressStage, got.ProgressPercent)
	}
	if got.StartedAt == nil {
		t.Fatal("expected start timestamp after MarkStarted")
	}

	run.MarkCompleted(0, "/tmp/out")
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, err = store.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.OutputDir != "/tmp/out" {
		t.Fatalf("output dir = %q", got.OutputDir)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finish timestamp after MarkCompleted")
	}
	if got.ProgressPercent != 100 {
		t.Fatalf("progress percent = %.1f, want 100", got.ProgressPercent)
	}
}

func TestUpdateMissingRunReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	run := NewRun("ghost", KindScript, "x", 1)
	err := store.Update(context.Background(), run)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewRun("a", KindScript, "one", 1)
	first.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	first.UpdatedAt = first.CreatedAt
	first.MarkFailed("boom")
	second := NewRun("b", KindScript, "two", 1)
	second.CreatedAt = time.Now().UTC().Add(-time.Hour)
	second.UpdatedAt = second.CreatedAt
	third := NewRun("c", KindPipeline, "three", 3)

	for _, run := range []*Run{first, second, third} {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("insert %s: %v", run.ID, err)
		}
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != "c" || runs[2].ID != "a" {
		t.Fatalf("order = [%s %s %s], want newest first", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Fatalf("limited list = %v", limited)
	}

	failed, err := store.List(ctx, 0, StatusFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "a" {
		t.Fatalf("failed filter returned %d runs", len(failed))
	}
}

func TestActiveReturnsNonTerminalRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done := NewRun("done", KindScript, "x", 1)
	done.MarkCompleted(0, "")
	if err := store.Insert(ctx, done); err != nil {
		t.Fatalf("insert: %v", err)
	}

	active, err := store.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatalf("active = %v, want nil", active)
	}

	live := NewRun("live", KindScript, "y", 1)
	live.MarkStarted()
	if err := store.Insert(ctx, live); err != nil {
		t.Fatalf("insert: %v", err)
	}
	active, err = store.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != "live" {
		t.Fatalf("active = %v, want run live", active)
	}
}

func TestResetAbandonedFailsInFlightRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stuck := NewRun("stuck", KindPipeline, "p", 2)
	stuck.MarkStarted()
	finished := NewRun("ok", KindScript, "s", 1)
	finished.MarkCompleted(0, "")
	for _, run := range []*Run{stuck, finished} {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("insert %s: %v", run.ID, err)
		}
	}

	reset, err := store.ResetAbandoned(ctx)
	if err != nil {
		t.Fatalf("reset abandoned: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}

	got, err := store.Get(ctx, "stuck")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("expected an error message on the reset run")
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finish timestamp on the reset run")
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := NewRun("a", KindScript, "x", 1)
	a.MarkCompleted(0, "")
	b := NewRun("b", KindScript, "y", 1)
	b.MarkCompleted(0, "")
	c := NewRun("c", KindScript, "z", 1)
	c.MarkCancelled()
	for _, run := range []*Run{a, b, c} {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("insert %s: %v", run.ID, err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusCompleted] != 2 || stats[StatusCancelled] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestClearRemovesOnlyTerminalRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	live := NewRun("live", KindScript, "x", 1)
	live.MarkStarted()
	dead := NewRun("dead", KindScript, "y", 1)
	dead.MarkFailed("boom")
	for _, run := range []*Run{live, dead} {
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("insert %s: %v", run.ID, err)
		}
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "live"); err != nil {
		t.Fatalf("live run should survive clear: %v", err)
	}
	if _, err := store.Get(ctx, "dead"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dead run should be gone, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, err := ParseStatus("  Failed "); err != nil || status != StatusFailed {
		t.Fatalf("ParseStatus = %q, %v", status, err)
	}
	if _, err := ParseStatus("exploded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusRunning} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}
