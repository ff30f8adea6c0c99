package autodir

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/automountd/internal/invariant"
)

// Mountpoint is a directory a volume is (or will be) mounted on.
type Mountpoint struct {
	env     *Env
	dir     *Directory
	mounted bool
}

// Path returns the assigned path, or "" if none.
func (m *Mountpoint) Path() string {
	if m.dir == nil {
		return ""
	}
	return m.dir.Path()
}

// Mounted reports whether a filesystem is recorded as mounted here.
func (m *Mountpoint) Mounted() bool {
	return m.mounted
}

// Directory returns the underlying directory, nil before Set.
func (m *Mountpoint) Directory() *Directory {
	return m.dir
}

// Set assigns a path. Overwriting an assigned path is a bug: it is logged and
// the previous path is cleaned up first.
func (m *Mountpoint) Set(ctx context.Context, path string) {
	if m.dir != nil && m.dir.Path() != "" {
		invariant.Report(m.env.logger, //nolint:errcheck
			invariant.Errorf("overwriting mountpoint %s with %s", m.dir.Path(), path))
		m.doCleanup(ctx, true) //nolint:errcheck
	}
	m.dir = m.env.NewDirectory(path)
}

// Create creates the mountpoint directory.
func (m *Mountpoint) Create() error {
	if m.dir == nil {
		return invariant.Report(m.env.logger, invariant.Errorf("creating unassigned mountpoint"))
	}
	return m.dir.Create()
}

// Probe refreshes the directory state and, when it exists, asks the
// mountpoint tool whether something is mounted on it.
func (m *Mountpoint) Probe(ctx context.Context, storeState bool) bool {
	if m.dir == nil || !m.dir.Probe(storeState) {
		m.mounted = false
		return false
	}

	_, err := m.env.Runner.Run(ctx, m.env.Tools.Mountpoint, m.dir.Path())
	m.mounted = err == nil
	return m.mounted
}

// Mount mounts devname on the mountpoint with the tool's base options plus
// options.
//
// Mounting onto an unassigned, missing or already mounted mountpoint is a bug.
func (m *Mountpoint) Mount(ctx context.Context, devname string, options ...string) error {
	switch {
	case m.dir == nil || m.dir.Path() == "":
		return invariant.Report(m.env.logger, invariant.Errorf("mounting %s on empty mountpoint", devname))
	case !m.dir.Exists(NotFound):
		return invariant.Report(m.env.logger,
			invariant.Errorf("mounting %s on nonexistent mountpoint %s", devname, m.dir.Path()))
	case m.mounted:
		return invariant.Report(m.env.logger,
			invariant.Errorf("mounting %s on busy mountpoint %s", devname, m.dir.Path()))
	}

	args := append(append([]string{}, options...), devname, m.dir.Path())
	if _, err := m.env.Runner.Run(ctx, m.env.Tools.Mount, args...); err != nil {
		m.env.logger.Warn("mount failed", "device", devname, "mountpoint", m.dir.Path(), "error", err)
		return fmt.Errorf("%w: %s on %s: %w", ErrMountFailed, devname, m.dir.Path(), err)
	}

	m.mounted = true
	return nil
}

// AdoptMounted records an externally performed mount without running a tool.
func (m *Mountpoint) AdoptMounted() {
	m.mounted = true
}

// Release unmounts but keeps the directory.
func (m *Mountpoint) Release(ctx context.Context) error {
	return m.doCleanup(ctx, false)
}

// Cleanup unmounts and removes the directory.
func (m *Mountpoint) Cleanup(ctx context.Context) error {
	return m.doCleanup(ctx, true)
}

// doCleanup never fails hard: an unmount failure is logged and ignored, so the
// returned error is informational only. External mountpoints are forgotten
// without being unmounted.
func (m *Mountpoint) doCleanup(ctx context.Context, thoroughly bool) error {
	if m.dir == nil {
		return nil
	}

	var unmountErr error
	if m.mounted {
		m.mounted = false
		if m.dir.State() != External {
			if _, err := m.env.Runner.Run(ctx, m.env.Tools.Unmount, m.dir.Path()); err != nil {
				m.env.logger.Warn("unmount failed (ignored)", "mountpoint", m.dir.Path(), "error", err)
				unmountErr = fmt.Errorf("%w: %s: %w", ErrUnmountFailed, m.dir.Path(), err)
			}
		}
	}

	if !thoroughly {
		return unmountErr
	}
	return errors.Join(unmountErr, m.dir.Cleanup())
}
