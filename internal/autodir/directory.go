package autodir

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/nerrad567/automountd/internal/invariant"
)

// CreationState records who is responsible for a directory.
type CreationState int

const (
	NotCreated CreationState = iota
	Created
	External
)

func (s CreationState) String() string {
	switch s {
	case Created:
		return "created"
	case External:
		return "external"
	default:
		return "not_created"
	}
}

// ExistsMode selects the question Exists answers.
type ExistsMode int

const (
	// NotFound asks whether a directory exists at all.
	NotFound ExistsMode = iota
	// JustWatching answers false for externally managed directories.
	JustWatching
)

// Directory is a filesystem directory with creation bookkeeping.
type Directory struct {
	env   *Env
	path  string
	state CreationState
}

// Path returns the directory path.
func (d *Directory) Path() string {
	return d.path
}

// State returns the creation state.
func (d *Directory) State() CreationState {
	return d.state
}

// Create makes the directory and any missing parents.
//
// Creating a directory twice or with an empty path is a bug and is refused.
func (d *Directory) Create() error {
	if d.path == "" {
		return invariant.Report(d.env.logger, invariant.Errorf("creating directory with empty path"))
	}
	if d.state != NotCreated {
		return invariant.Report(d.env.logger,
			invariant.Errorf("directory %s already %s", d.path, d.state), "path", d.path)
	}

	if err := d.env.FS.MkdirAll(d.path, dirPerm); err != nil {
		d.env.logger.Error("failed to create directory", "path", d.path, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrCreateFailed, d.path, err)
	}
	d.state = Created
	return nil
}

// Probe reports whether the path exists as a directory.
//
// With storeState, the result is recorded: a directory that exists but was
// not created here becomes External, a missing one becomes NotCreated.
func (d *Directory) Probe(storeState bool) bool {
	exists := false
	if d.path != "" {
		if fi, err := d.env.FS.Stat(d.path); err == nil && fi.IsDir() {
			exists = true
		}
	}

	if storeState {
		switch {
		case !exists:
			d.state = NotCreated
		case d.state == NotCreated:
			d.state = External
		}
	}
	return exists
}

// Exists answers from recorded state without touching the filesystem.
func (d *Directory) Exists(mode ExistsMode) bool {
	if mode == JustWatching {
		return d.state == Created
	}
	return d.state != NotCreated
}

// Cleanup removes a directory this process created.
//
// Removal is attempted CleanupRetries times without complaint, then once more
// with the failure logged. The state is reset to NotCreated in every case;
// externally managed directories are left on disk.
func (d *Directory) Cleanup() error {
	defer func() { d.state = NotCreated }()

	if d.state != Created {
		return nil
	}

	var err error
	for remaining := d.env.CleanupRetries; remaining >= 0; remaining-- {
		if remaining != d.env.CleanupRetries {
			d.env.Sleep(d.env.CleanupInterval)
		}
		err = d.env.FS.Remove(d.path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}

	d.env.logger.Error("giving up on removing directory",
		"path", d.path,
		"attempts", d.env.CleanupRetries+1,
		"error", err,
	)
	return fmt.Errorf("%w: %s: %w", ErrCleanupFailed, d.path, err)
}
