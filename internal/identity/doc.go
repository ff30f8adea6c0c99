// Package identity turns device-link names and probe-tool output into the
// identifiers the registry keys on.
//
// Everything here is pure: no filesystem access and no process spawning. The
// probe output is obtained elsewhere (package osdev) and handed in as text.
//
// Naming conventions understood by the parsers:
//
//	usb-SanDisk_Cruzer_4C53-0:0          whole device
//	usb-SanDisk_Cruzer_4C53-0:0-part1    partition 1 of that device
//	/dev/sdb1                            concrete device behind a link
//
// Probe output is the line-oriented KEY=value export format produced by
// "udevadm info --export" (optionally prefixed "E: ") or "blkid -o export".
package identity
