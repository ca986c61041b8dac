package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"platen/internal/logging"
	"platen/internal/protocol"
	"platen/internal/services"
)

const (
	scanBufferSize    = 64 * 1024
	scanBufferMaximum = 1024 * 1024
)

// invocation is one spawned worker process. The worker runs in its own
// process group so terminating it reaches any children the script forked.
type invocation struct {
	id        string
	command   string
	cmd       *exec.Cmd
	cancelled atomic.Bool
	done      chan struct{}
	killOnce  sync.Once
}

func newInvocation(command string, args []string) *invocation {
	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return &invocation{
		id:      newInvocationID(),
		command: command,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
}

// terminate requests a graceful stop of the worker's process group and
// arranges a SIGKILL escalation if it lingers past the grace period. Safe to
// call repeatedly and before the process has started.
func (inv *invocation) terminate(grace time.Duration) {
	inv.cancelled.Store(true)
	proc := inv.cmd.Process
	if proc == nil {
		return
	}
	pgid := proc.Pid
	_ = unix.Kill(-pgid, unix.SIGTERM)
	inv.killOnce.Do(func() {
		go func() {
			select {
			case <-inv.done:
			case <-time.After(grace):
				_ = unix.Kill(-pgid, unix.SIGKILL)
			}
		}()
	})
}

// kill force-stops the process group without marking the invocation
// cancelled, for supervision failures.
func (inv *invocation) kill() {
	if proc := inv.cmd.Process; proc != nil {
		_ = unix.Kill(-proc.Pid, unix.SIGKILL)
	}
}

// RunBuffered executes one worker and collects its full stdout and stderr.
// The returned error is non-nil only when the process could not be started
// or supervised; a nonzero exit is reported through the result instead.
func (r *Runner) RunBuffered(ctx context.Context, command string, args []string) (BufferedResult, error) {
	inv := newInvocation(command, args)
	result := BufferedResult{InvocationID: inv.id, State: StatePending, ExitCode: -1}

	if ctx.Err() != nil {
		result.State = StateCancelled
		return result, nil
	}

	var stdout, stderr bytes.Buffer
	inv.cmd.Stdout = &stdout
	inv.cmd.Stderr = &stderr

	if err := r.begin(inv); err != nil {
		result.State = StateFailed
		return result, err
	}
	defer r.finish(inv)

	if err := inv.cmd.Start(); err != nil {
		close(inv.done)
		result.State = StateFailed
		return result, services.Wrap(services.ErrSpawn, "runner", "start", command, err)
	}
	// A cancel that raced the spawn has a live process to hit now.
	if inv.cancelled.Load() {
		inv.terminate(r.killGrace)
	}
	r.logger.Debug("worker started",
		logging.String("invocation_id", inv.id),
		logging.String("command", command),
		logging.Int("pid", inv.cmd.Process.Pid))
	go r.watchContext(ctx, inv)

	waitErr := inv.cmd.Wait()
	close(inv.done)

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.State, result.ExitCode = resolveWait(inv, waitErr)
	if result.State == StateFailed {
		return result, services.Wrap(services.ErrExternalTool, "runner", "wait", command, waitErr)
	}
	r.logger.Debug("worker exited",
		logging.String("invocation_id", inv.id),
		logging.String("state", string(result.State)),
		logging.Int("exit_code", result.ExitCode))
	return result, nil
}

// RunStreaming executes one worker, decoding each stdout line into an event
// delivered synchronously to onEvent in arrival order. Stderr is collected as
// plain diagnostic text and never decoded. Once a cancel request has been
// acknowledged no further events are delivered.
func (r *Runner) RunStreaming(ctx context.Context, command string, args []string, onEvent func(protocol.Event)) (StreamResult, error) {
	inv := newInvocation(command, args)
	result := StreamResult{InvocationID: inv.id, State: StatePending, ExitCode: -1}

	if ctx.Err() != nil {
		result.State = StateCancelled
		return result, nil
	}

	stdoutPipe, err := inv.cmd.StdoutPipe()
	if err != nil {
		result.State = StateFailed
		return result, services.Wrap(services.ErrSpawn, "runner", "stdout pipe", command, err)
	}
	stderrPipe, err := inv.cmd.StderrPipe()
	if err != nil {
		result.State = StateFailed
		return result, services.Wrap(services.ErrSpawn, "runner", "stderr pipe", command, err)
	}

	if err := r.begin(inv); err != nil {
		result.State = StateFailed
		return result, err
	}
	defer r.finish(inv)

	if err := inv.cmd.Start(); err != nil {
		close(inv.done)
		result.State = StateFailed
		return result, services.Wrap(services.ErrSpawn, "runner", "start", command, err)
	}
	if inv.cancelled.Load() {
		inv.terminate(r.killGrace)
	}
	r.logger.Debug("worker started",
		logging.String("invocation_id", inv.id),
		logging.String("command", command),
		logging.Int("pid", inv.cmd.Process.Pid))
	go r.watchContext(ctx, inv)

	var (
		wg        sync.WaitGroup
		scanOnce  sync.Once
		scanErr   error
		stderrBuf strings.Builder
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, scanBufferSize), scanBufferMaximum)
		for scanner.Scan() {
			if inv.cancelled.Load() {
				continue
			}
			event, ok := protocol.DecodeLine(scanner.Text())
			if !ok {
				continue
			}
			if onEvent != nil {
				onEvent(event)
			}
		}
		if err := scanner.Err(); err != nil {
			scanOnce.Do(func() { scanErr = err })
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, scanBufferSize), scanBufferMaximum)
		for scanner.Scan() {
			line := scanner.Text()
			if stderrBuf.Len() > 0 {
				stderrBuf.WriteByte('\n')
			}
			stderrBuf.WriteString(line)
			r.logger.Debug("worker stderr",
				logging.String("invocation_id", inv.id),
				logging.String("line", line))
		}
		if err := scanner.Err(); err != nil {
			scanOnce.Do(func() { scanErr = err })
		}
	}()

	wg.Wait()
	if scanErr != nil && !inv.cancelled.Load() {
		inv.kill()
	}
	waitErr := inv.cmd.Wait()
	close(inv.done)

	result.Stderr = stderrBuf.String()
	result.State, result.ExitCode = resolveWait(inv, waitErr)
	if result.State == StateFailed {
		return result, services.Wrap(services.ErrExternalTool, "runner", "wait", command, waitErr)
	}
	if scanErr != nil && result.State != StateCancelled {
		result.State = StateFailed
		return result, services.Wrap(services.ErrExternalTool, "runner", "read worker output", command, scanErr)
	}
	r.logger.Debug("worker exited",
		logging.String("invocation_id", inv.id),
		logging.String("state", string(result.State)),
		logging.Int("exit_code", result.ExitCode))
	return result, nil
}

// resolveWait folds the Wait outcome into a terminal state. Cancellation
// wins over whatever exit the signal produced; an exit code, zero or not,
// is a completed supervision.
func resolveWait(inv *invocation, waitErr error) (State, int) {
	exitCode := -1
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		exitCode = 0
	case errors.As(waitErr, &exitErr):
		exitCode = exitErr.ExitCode()
	}

	if inv.cancelled.Load() {
		return StateCancelled, exitCode
	}
	if waitErr == nil || exitErr != nil {
		return StateCompleted, exitCode
	}
	return StateFailed, exitCode
}
