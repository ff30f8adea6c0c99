package autodir

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// MountLister lists live mountpoints below a directory.
type MountLister interface {
	MountsUnder(dir string) ([]string, error)
}

// ForceUnmount unmounts path with the unmount tool and falls back to a lazy
// detach if the tool fails.
func (e *Env) ForceUnmount(ctx context.Context, path string) error {
	_, err := e.Runner.Run(ctx, e.Tools.Unmount, path)
	if err == nil {
		return nil
	}

	e.logger.Warn("unmount failed, detaching", "mountpoint", path, "error", err)
	if derr := e.Detach(path); derr != nil {
		e.logger.Error("failed to detach residual mount", "mountpoint", path, "error", derr)
		return derr
	}
	return nil
}

// Sweep force-unmounts every mount below root, deepest first, then removes
// every empty directory below it. With removeRoot the root itself goes too.
//
// Directories are removed one by one, never recursively, so content that is
// somehow still mounted is left alone.
func (e *Env) Sweep(ctx context.Context, root string, mounts MountLister, removeRoot bool) {
	if root == "" {
		return
	}

	if mounts != nil {
		mps, err := mounts.MountsUnder(root)
		if err != nil {
			e.logger.Warn("cannot list residual mounts", "root", root, "error", err)
		}
		slices.SortFunc(mps, func(a, b string) int {
			return strings.Count(b, "/") - strings.Count(a, "/")
		})
		for _, mp := range mps {
			if mp == root {
				continue
			}
			e.logger.Warn("removing residual mount", "mountpoint", mp)
			e.ForceUnmount(ctx, mp) //nolint:errcheck
		}
	}

	var dirs []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable subtrees are skipped
		}
		if d.IsDir() && (path != root || removeRoot) {
			dirs = append(dirs, path)
		}
		return nil
	})
	if walkErr != nil {
		e.logger.Debug("sweep walk ended early", "root", root, "error", walkErr)
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := e.FS.Remove(dirs[i]); err != nil {
			e.logger.Warn("cannot remove residual directory", "path", dirs[i], "error", err)
		}
	}
}
