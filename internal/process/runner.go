package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// outputLimit caps how much stdout/stderr is retained per invocation.
const outputLimit = 64 * 1024

// Result describes a finished tool invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is notified after every invocation. err is nil on success.
type Observer func(tool string, err error)

// ToolStats holds counters for a single tool.
type ToolStats struct {
	Invocations int64
	Failures    int64
	LastError   string
}

// Runner executes Commands synchronously.
type Runner struct {
	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration

	logger   Logger
	observer Observer

	mu    sync.Mutex
	stats map[string]*ToolStats
}

// NewRunner creates a Runner with no timeout and a no-op logger.
func NewRunner() *Runner {
	return &Runner{
		logger: noopLogger{},
		stats:  make(map[string]*ToolStats),
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetObserver registers a callback invoked after each run (used for metrics).
func (r *Runner) SetObserver(fn Observer) {
	r.observer = fn
}

// Run executes cmd with the given extra arguments and waits for it to exit.
//
// Parameters:
//   - ctx: Cancels the child (the whole process group is killed)
//   - cmd: Tool template
//   - args: Per-call arguments appended after the template's options
//
// Returns:
//   - Result: Exit code, captured output and duration (populated even on failure)
//   - error: ErrStartFailed or ErrNonZeroExit (wrapped), nil on exit status 0
func (r *Runner) Run(ctx context.Context, cmd Command, args ...string) (Result, error) {
	argv := cmd.Argv(args...)
	if len(argv) == 0 {
		return Result{ExitCode: -1}, ErrEmptyCommand
	}
	name := cmd.Name
	if name == "" {
		name = argv[0]
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from operator configuration
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		// Negative PID signals the process group created via Setpgid.
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr limitedBuffer
	stdout.limit, stderr.limit = outputLimit, outputLimit
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		err = fmt.Errorf("%w: %s exited with status %d", ErrNonZeroExit, name, res.ExitCode)
	default:
		res.ExitCode = -1
		err = fmt.Errorf("%w: %s: %w", ErrStartFailed, name, err)
	}

	r.logger.Debug("tool finished",
		"tool", name,
		"argv", argv,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"stderr", res.Stderr,
	)
	r.record(name, err)

	return res, err
}

func (r *Runner) record(name string, err error) {
	r.mu.Lock()
	s, ok := r.stats[name]
	if !ok {
		s = &ToolStats{}
		r.stats[name] = s
	}
	s.Invocations++
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observer(name, err)
	}
}

// Stats returns a copy of the per-tool counters.
func (r *Runner) Stats() map[string]ToolStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ToolStats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}

// limitedBuffer keeps the first limit bytes written and silently drops the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
