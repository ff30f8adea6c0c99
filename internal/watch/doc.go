// Package watch turns directory changes into automount events.
//
// A Watcher observes the device-link directory (normally /dev/disk/by-id) and,
// optionally, a directory where another agent creates mountpoints. On Start it
// first reports every link already present, in sorted order, so the registry
// is populated from scratch on every daemon start. Removal of the watched
// device-link directory itself yields a Shutdown event.
//
// Events for different paths carry no ordering guarantee.
package watch
