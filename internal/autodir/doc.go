// Package autodir manages the directories and mountpoints automountd creates.
//
// A Directory tracks whether this process created it, whether something else
// did (externally managed, as in watch mode), or whether it does not exist.
// Removal is best effort with a bounded retry: a directory is frequently busy
// for a moment after umount returns.
//
// A Mountpoint composes a Directory with calls to the configured mount,
// unmount and mountpoint tools.
//
// All objects share an Env carrying the filesystem, the process runner, the
// tool set and the retry policy. Nothing here is safe for concurrent use; the
// automount loop owns every instance.
package autodir
