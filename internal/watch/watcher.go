package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// eventBuffer sizes the event channel; a burst of partitions from one plug
// fits without blocking the fsnotify reader.
const eventBuffer = 64

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = errors.New("watch: already started")

// Logger defines the logging interface for the watcher.
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

// Config selects the watched directories.
type Config struct {
	// DevlinkDir holds device links (required).
	DevlinkDir string
	// MountpointDir holds mountpoints created by another agent (optional).
	MountpointDir string
}

// Watcher delivers Events on a channel.
type Watcher struct {
	cfg    Config
	logger Logger
	events chan Event

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Watcher. Nothing is observed until Start.
func New(cfg Config) *Watcher {
	return &Watcher{
		cfg:    cfg,
		logger: noopLogger{},
		events: make(chan Event, eventBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the watcher.
func (w *Watcher) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Events returns the event channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start installs the watches, emits the initial scan and begins forwarding
// changes until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.cfg.DevlinkDir); err != nil {
		fsw.Close() //nolint:errcheck
		return fmt.Errorf("watching %s: %w", w.cfg.DevlinkDir, err)
	}
	// The parent is watched so removal of the link directory itself is seen.
	if err := fsw.Add(filepath.Dir(filepath.Clean(w.cfg.DevlinkDir))); err != nil {
		w.logger.Debug("cannot watch parent of device-link directory", "error", err)
	}
	if w.cfg.MountpointDir != "" {
		if err := fsw.Add(w.cfg.MountpointDir); err != nil {
			fsw.Close() //nolint:errcheck
			return fmt.Errorf("watching %s: %w", w.cfg.MountpointDir, err)
		}
	}
	w.fsw = fsw
	w.started = true

	initial := w.scan()
	go w.run(ctx, initial)

	w.logger.Info("watching for devices",
		"devlink_dir", w.cfg.DevlinkDir,
		"mountpoint_dir", w.cfg.MountpointDir,
		"initial_entries", len(initial),
	)
	return nil
}

// scan lists current entries. Sorting puts "usb-X" before "usb-X-part1".
func (w *Watcher) scan() []Event {
	var out []Event
	add := func(dir string, typ EventType) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn("initial scan failed", "dir", dir, "error", err)
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, Event{Type: typ, Path: filepath.Join(dir, n)})
		}
	}

	add(w.cfg.DevlinkDir, DeviceAdded)
	if w.cfg.MountpointDir != "" {
		add(w.cfg.MountpointDir, MountpointAdded)
	}
	return out
}

func (w *Watcher) run(ctx context.Context, initial []Event) {
	defer close(w.events)
	defer close(w.done)

	for _, ev := range initial {
		if !w.emit(ctx, ev) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case fe, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			ev, ok := w.translate(fe)
			if !ok {
				continue
			}
			if !w.emit(ctx, ev) || ev.Type == Shutdown {
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	w.logger.Debug("event", "type", ev.Type, "path", ev.Path)
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-w.stop:
		return false
	}
}

func (w *Watcher) translate(fe fsnotify.Event) (Event, bool) {
	name := filepath.Clean(fe.Name)
	dir := filepath.Dir(name)
	gone := fe.Has(fsnotify.Remove) || fe.Has(fsnotify.Rename)

	switch {
	case name == filepath.Clean(w.cfg.DevlinkDir):
		if gone {
			w.logger.Warn("device-link directory disappeared", "dir", name)
			return Event{Type: Shutdown, Path: name}, true
		}
	case dir == filepath.Clean(w.cfg.DevlinkDir):
		if fe.Has(fsnotify.Create) {
			return Event{Type: DeviceAdded, Path: name}, true
		}
		if gone {
			return Event{Type: DeviceRemoved, Path: name}, true
		}
	case w.cfg.MountpointDir != "" && dir == filepath.Clean(w.cfg.MountpointDir):
		if fe.Has(fsnotify.Create) {
			return Event{Type: MountpointAdded, Path: name}, true
		}
		if gone {
			return Event{Type: MountpointRemoved, Path: name}, true
		}
	}
	return Event{}, false
}

// Close stops the watcher and waits for the forwarding goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fsw, started := w.fsw, w.started
	w.mu.Unlock()

	if !started {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stop) })
	err := fsw.Close()
	<-w.done
	return err
}
