package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"platen/internal/logging"
	"platen/internal/services"
)

// State is the lifecycle state of one worker invocation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// BufferedResult is the outcome of a buffered run. State is StateCompleted
// whenever the worker ran to an exit code, even a nonzero one; StateFailed
// means the process could not be started or supervised.
type BufferedResult struct {
	InvocationID string
	State        State
	ExitCode     int
	Stdout       string
	Stderr       string
}

// Success reports whether the worker ran and exited zero.
func (r BufferedResult) Success() bool {
	return r.State == StateCompleted && r.ExitCode == 0
}

// StreamResult is the outcome of a streaming run. Stdout is not retained;
// it was delivered line by line as events.
type StreamResult struct {
	InvocationID string
	State        State
	ExitCode     int
	Stderr       string
}

// Success reports whether the worker ran and exited zero.
func (r StreamResult) Success() bool {
	return r.State == StateCompleted && r.ExitCode == 0
}

const defaultKillGrace = 3 * time.Second

// Runner spawns worker processes and tracks the single active invocation for
// cancellation.
type Runner struct {
	logger    *slog.Logger
	killGrace time.Duration

	mu     sync.Mutex
	active *invocation
}

// Option configures a Runner.
type Option func(*Runner)

// WithKillGrace overrides how long a cancelled worker gets to exit after
// SIGTERM before the whole process group is killed.
func WithKillGrace(grace time.Duration) Option {
	return func(r *Runner) {
		if grace > 0 {
			r.killGrace = grace
		}
	}
}

// New constructs a Runner.
func New(logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:    logging.NewComponentLogger(logger, "runner"),
		killGrace: defaultKillGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active returns the id of the currently tracked invocation, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return "", false
	}
	return r.active.id, true
}

// CancelActive requests termination of the active invocation. The call is
// idempotent and a no-op when nothing is running; it returns the invocation
// id a cancel was delivered to. No further events are delivered once the
// request is acknowledged, though the worker itself winds down
// asynchronously.
func (r *Runner) CancelActive() (string, bool) {
	r.mu.Lock()
	inv := r.active
	r.mu.Unlock()
	if inv == nil {
		return "", false
	}
	r.logger.Info("cancelling worker", logging.String("invocation_id", inv.id))
	inv.terminate(r.killGrace)
	return inv.id, true
}

func (r *Runner) begin(inv *invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return services.Wrap(services.ErrBusy, "runner", "start",
			"another worker is already running", nil)
	}
	r.active = inv
	return nil
}

func (r *Runner) finish(inv *invocation) {
	r.mu.Lock()
	if r.active == inv {
		r.active = nil
	}
	r.mu.Unlock()
}

// watchContext cancels the invocation when ctx is done before the worker
// exits.
func (r *Runner) watchContext(ctx context.Context, inv *invocation) {
	select {
	case <-ctx.Done():
		inv.terminate(r.killGrace)
	case <-inv.done:
	}
}

func newInvocationID() string {
	return uuid.NewString()
}
