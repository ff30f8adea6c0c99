package automount

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/automountd/internal/device"
)

// maxLinkSuffix bounds the search for a free label name.
const maxLinkSuffix = 99

// createSymlink links SymlinkDirectory/<label> to the volume's mountpoint,
// appending _2, _3... while the name is taken.
func (c *Core) createSymlink(v *device.Volume) {
	if c.cfg.SymlinkDirectory == "" {
		return
	}
	target := v.Mountpoint().Path()
	base := linkName(v.Label)

	for i := 1; i <= maxLinkSuffix; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		link := filepath.Join(c.cfg.SymlinkDirectory, name)

		err := os.Symlink(target, link)
		if err == nil {
			v.Symlink = link
			return
		}
		if !errors.Is(err, fs.ErrExist) {
			c.logger.Warn("cannot create label link", "link", link, "target", target, "error", err)
			return
		}
	}
	c.logger.Warn("no free label link name", "label", v.Label)
}

// removeSymlink removes the volume's link if it still points at the mountpoint.
func (c *Core) removeSymlink(v *device.Volume) {
	if v.Symlink == "" {
		return
	}
	if target, err := os.Readlink(v.Symlink); err == nil && target == v.Mountpoint().Path() {
		if err := os.Remove(v.Symlink); err != nil {
			c.logger.Warn("cannot remove label link", "link", v.Symlink, "error", err)
		}
	}
	v.Symlink = ""
}

// pruneSymlinks removes links left behind by a previous run.
func (c *Core) pruneSymlinks() {
	entries, err := os.ReadDir(c.cfg.SymlinkDirectory)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		link := filepath.Join(c.cfg.SymlinkDirectory, e.Name())
		target, err := os.Readlink(link)
		if err != nil || !within(target, c.cfg.WorkingDirectory) {
			continue
		}
		if err := os.Remove(link); err == nil {
			c.logger.Debug("removed stale label link", "link", link)
		}
	}
}

func linkName(label string) string {
	name := strings.TrimSpace(strings.ReplaceAll(label, "/", "_"))
	if name == "" || name == "." || name == ".." {
		return "volume"
	}
	return name
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
