package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"platen/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platend.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestReadLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\n")

	result, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "two" || result.Lines[1] != "three" {
		t.Fatalf("lines = %#v", result.Lines)
	}
	if result.Offset != int64(len("one\ntwo\nthree\n")) {
		t.Fatalf("offset = %d", result.Offset)
	}
}

func TestReadLimitLargerThanFile(t *testing.T) {
	path := writeLog(t, "only\n")

	result, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 50})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("lines = %#v", result.Lines)
	}
}

func TestReadResumesFromOffset(t *testing.T) {
	path := writeLog(t, "first\n")

	initial, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("second\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	result, err := logs.Read(context.Background(), path, logs.Options{Offset: initial.Offset})
	if err != nil {
		t.Fatalf("resume read: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "second" {
		t.Fatalf("lines = %#v", result.Lines)
	}
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")

	result, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestReadStaleOffsetAfterTruncation(t *testing.T) {
	path := writeLog(t, "short\n")

	result, err := logs.Read(context.Background(), path, logs.Options{Offset: 10_000})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("lines = %#v", result.Lines)
	}
	if result.Offset != int64(len("short\n")) {
		t.Fatalf("offset = %d", result.Offset)
	}
}

func TestReadWaitsForNewLines(t *testing.T) {
	path := writeLog(t, "start\n")

	initial, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}

	done := make(chan logs.Result, 1)
	go func() {
		result, err := logs.Read(context.Background(), path, logs.Options{Offset: initial.Offset, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow read: %v", err)
		}
		done <- result
	}()

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	select {
	case result := <-done:
		if len(result.Lines) != 1 || result.Lines[0] != "later" {
			t.Fatalf("lines = %#v", result.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow read never returned")
	}
}

func TestReadWaitStopsOnContextCancel(t *testing.T) {
	path := writeLog(t, "start\n")

	initial, err := logs.Read(context.Background(), path, logs.Options{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err = logs.Read(ctx, path, logs.Options{Offset: initial.Offset, Wait: 30 * time.Second})
	if err == nil {
		t.Fatal("expected context error")
	}
}
