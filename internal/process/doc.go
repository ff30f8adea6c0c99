// Package process runs the external tools automountd depends on.
//
// Every mount, unmount and probe is a short-lived synchronous invocation of a
// configured command line (mount(8), umount(8), mountpoint(1), udevadm, blkid).
// The Runner executes the command in its own process group, captures stdout
// for the probe parsers and stderr for diagnostics, and reports the exit code.
//
// Example usage:
//
//	runner := process.NewRunner()
//	runner.SetLogger(log)
//
//	res, err := runner.Run(ctx, tools.Mount, "/dev/sdb1", "/run/automountd/1/1")
//	if errors.Is(err, process.ErrNonZeroExit) {
//	    // mount refused the device
//	}
//
// There is no timeout by default: a hung tool blocks the caller. Set
// Runner.Timeout to bound invocations.
package process
