package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	maxLineBytes   = 1024 * 1024
	followInterval = 200 * time.Millisecond
)

// Options selects which part of the log file to read.
type Options struct {
	// Offset is the byte position to resume from. A negative offset means
	// "the last Limit lines of the file".
	Offset int64
	// Limit bounds how many trailing lines a negative offset returns.
	Limit int
	// Wait blocks up to this long for new lines when the read comes up
	// empty; zero returns immediately.
	Wait time.Duration
}

// Result carries the lines read and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// Read returns log lines per opts. A missing file is not an error: the
// daemon may simply not have logged yet, so the result is empty with a zero
// offset and the caller retries later.
func Read(ctx context.Context, path string, opts Options) (Result, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	deadline := time.Now().Add(opts.Wait)

	var (
		lines  []string
		offset int64
		err    error
	)
	if opts.Offset < 0 {
		lines, offset, err = lastLines(path, opts.Limit)
	} else {
		lines, offset, err = readAt(path, opts.Offset)
	}
	if err != nil {
		return Result{}, err
	}
	if len(lines) > 0 || opts.Wait <= 0 {
		return Result{Lines: lines, Offset: offset}, nil
	}
	return follow(ctx, path, offset, deadline)
}

// lastLines scans the whole file through a ring buffer of limit entries and
// returns the survivors plus the end-of-file offset.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ring := make([]string, limit)
	total := 0
	for scanner.Scan() {
		ring[total%limit] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	count := total
	if count > limit {
		count = limit
	}
	lines := make([]string, count)
	for i := 0; i < count; i++ {
		lines[i] = ring[(total-count+i)%limit]
	}
	return lines, offset, nil
}

// readAt returns every complete line at or past offset. An offset beyond the
// current size means the file was rotated or truncated; the read resumes at
// the new end rather than re-delivering old content.
func readAt(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = info.Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, end, nil
}

// follow polls for new lines until the deadline passes or the context ends.
func follow(ctx context.Context, path string, offset int64, deadline time.Time) (Result, error) {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		lines, next, err := readAt(path, offset)
		if err != nil {
			return Result{Offset: offset}, err
		}
		if len(lines) > 0 || !time.Now().Before(deadline) {
			return Result{Lines: lines, Offset: next}, nil
		}
		offset = next

		select {
		case <-ctx.Done():
			return Result{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
	}
}
