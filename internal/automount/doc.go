// Package automount decides what gets mounted and drives the mount lifecycle.
//
// Core turns registry outcomes into actions: it filters devices by name
// prefix, creates per-device working directories, mounts pending volumes
// with filesystem-specific options and unmounts everything when a device
// goes away. Loop serialises every event onto one goroutine, which is the
// sole owner of the registry.
//
// Mount layout:
//
//	<working_directory>/<device id>/<volume index>     mountpoint
//	<symlink_directory>/<label>[_N]  ->  mountpoint    optional user link
//
// A filesystem spanning a whole device uses the directory name "disk".
//
// Event handling (device link appears):
//
//	Registry.NewEntry ─▶ device freshly probed? ─▶ filter ─▶ Ok / Rejected
//	                                              │
//	                                              ▼
//	                         working dir ─▶ DeviceAdded ─▶ mount pending volumes
//	                   volume under Ok device ─▶ volume filter ─▶ mount
//
// Tools run synchronously; a hung mount blocks the loop.
package automount
