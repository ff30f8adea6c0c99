package autodir

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/automountd/internal/process"
)

const (
	// DefaultCleanupRetries is the number of silent removal attempts before
	// the final, logged one.
	DefaultCleanupRetries = 20

	// DefaultCleanupInterval spaces removal attempts.
	DefaultCleanupInterval = 250 * time.Millisecond

	dirPerm = 0o755
)

// FS is the filesystem surface used for directory management.
type FS interface {
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Stat(path string) (os.FileInfo, error)
}

type osFS struct{}

func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (osFS) Remove(path string) error                     { return os.Remove(path) }
func (osFS) Stat(path string) (os.FileInfo, error)        { return os.Stat(path) }

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, cmd process.Command, args ...string) (process.Result, error)
}

// Logger defines the logging interface for directory management.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Env is shared by every Directory and Mountpoint.
type Env struct {
	FS     FS
	Runner Runner
	Tools  process.Tools

	// CleanupRetries and CleanupInterval drive Directory.Cleanup.
	CleanupRetries  int
	CleanupInterval time.Duration

	// Sleep is called between removal attempts.
	Sleep func(time.Duration)

	// Detach lazily unmounts a path when the unmount tool fails during a sweep.
	Detach func(path string) error

	logger Logger
}

// NewEnv creates an Env backed by the real filesystem.
func NewEnv(runner Runner, tools process.Tools) *Env {
	return &Env{
		FS:              osFS{},
		Runner:          runner,
		Tools:           tools,
		CleanupRetries:  DefaultCleanupRetries,
		CleanupInterval: DefaultCleanupInterval,
		Sleep:           time.Sleep,
		Detach: func(path string) error {
			return unix.Unmount(path, unix.MNT_DETACH)
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by every object created from this Env.
func (e *Env) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Logger returns the Env's logger.
func (e *Env) Logger() Logger {
	return e.logger
}

// NewDirectory returns an uncreated Directory for path.
func (e *Env) NewDirectory(path string) *Directory {
	return &Directory{env: e, path: path}
}

// NewMountpoint returns a Mountpoint with no path assigned.
func (e *Env) NewMountpoint() *Mountpoint {
	return &Mountpoint{env: e}
}
