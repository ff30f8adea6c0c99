package autodir

import "errors"

var (
	// ErrCreateFailed is returned when a directory could not be created.
	ErrCreateFailed = errors.New("autodir: failed to create directory")

	// ErrCleanupFailed is returned when a directory survived every removal attempt.
	ErrCleanupFailed = errors.New("autodir: failed to remove directory")

	// ErrMountFailed is returned when the mount tool reported failure.
	ErrMountFailed = errors.New("autodir: mount failed")

	// ErrUnmountFailed is returned when the unmount tool reported failure.
	ErrUnmountFailed = errors.New("autodir: unmount failed")
)
