package device

import (
	"errors"

	"github.com/nerrad567/automountd/internal/invariant"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrResolveFailed) {
//	    // the symlink vanished before it could be followed
//	}
var (
	// ErrResolveFailed is returned when a device link cannot be resolved.
	ErrResolveFailed = errors.New("device: cannot resolve device link")

	// ErrProbeFailed is returned when volume metadata cannot be obtained.
	ErrProbeFailed = errors.New("device: probe failed")

	// ErrNoFreeID is returned when every device ID is in use.
	ErrNoFreeID = errors.New("device: no free device id")

	// ErrNoMountpointResolver is returned by NewEntryByMountpoint when no
	// resolver was configured.
	ErrNoMountpointResolver = errors.New("device: no mountpoint resolver")

	// ErrInvariant is wrapped by every invariant-violation error.
	ErrInvariant = invariant.ErrViolated
)
