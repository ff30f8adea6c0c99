package process

import "errors"

var (
	// ErrEmptyCommand is returned when a Command has no binary configured.
	ErrEmptyCommand = errors.New("process: empty command")

	// ErrStartFailed is returned when the tool could not be started at all.
	ErrStartFailed = errors.New("process: failed to start")

	// ErrNonZeroExit is returned when the tool ran but exited with a non-zero status.
	ErrNonZeroExit = errors.New("process: non-zero exit")
)
