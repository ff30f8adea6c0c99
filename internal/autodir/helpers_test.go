package autodir

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/automountd/internal/process"
)

// fakeRunner records invocations and fails tools listed in fail.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]bool)}
}

func (r *fakeRunner) Run(_ context.Context, cmd process.Command, args ...string) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(cmd.Argv(args...), " "))
	if r.fail[cmd.Name] {
		return process.Result{ExitCode: 32}, process.ErrNonZeroExit
	}
	return process.Result{}, nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// flakyFS delegates to the real filesystem but fails the first failRemoves
// calls to Remove.
type flakyFS struct {
	failRemoves int
	removes     int
}

func (f *flakyFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (f *flakyFS) Stat(path string) (os.FileInfo, error)        { return os.Stat(path) }

func (f *flakyFS) Remove(path string) error {
	f.removes++
	if f.removes <= f.failRemoves {
		return errors.New("device or resource busy")
	}
	return os.Remove(path)
}

// recordingLogger counts messages per level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// testEnv returns an Env with instant sleeps and recording collaborators.
func testEnv(runner *fakeRunner) (*Env, *recordingLogger, *[]time.Duration) {
	env := NewEnv(runner, process.Tools{
		Mount:      process.Command{Name: "mount", Binary: "/bin/mount", Options: "-o ro"},
		Unmount:    process.Command{Name: "unmount", Binary: "/bin/umount"},
		Mountpoint: process.Command{Name: "mountpoint", Binary: "/bin/mountpoint", Options: "-q"},
	})
	var sleeps []time.Duration
	env.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	env.Detach = func(string) error { return nil }
	log := &recordingLogger{}
	env.SetLogger(log)
	return env, log, &sleeps
}
