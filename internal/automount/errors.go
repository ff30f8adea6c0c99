package automount

import "errors"

// ErrLoopStopped is returned by Loop queries after Run has returned.
var ErrLoopStopped = errors.New("automount: loop stopped")
