// Package mounttable reads the kernel mount table.
package mounttable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"

	"github.com/nerrad567/automountd/internal/identity"
)

// ErrNotMounted is returned when a path is not a mountpoint.
var ErrNotMounted = errors.New("mounttable: not a mountpoint")

// Table answers mount-table questions, mapping mounts back to device links
// found in a watch directory.
type Table struct {
	watchDir string

	// getMounts and resolve are replaced in tests.
	getMounts func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)
	resolve   func(string) (string, error)
}

// New creates a Table that resolves devices against links in watchDir.
func New(watchDir string) *Table {
	return &Table{
		watchDir:  watchDir,
		getMounts: mountinfo.GetMounts,
		resolve:   filepath.EvalSymlinks,
	}
}

// Source returns the mounted device of mountpoint.
func (t *Table) Source(mountpoint string) (string, error) {
	mounts, err := t.getMounts(mountinfo.SingleEntryFilter(filepath.Clean(mountpoint)))
	if err != nil {
		return "", fmt.Errorf("reading mount table: %w", err)
	}
	if len(mounts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotMounted, mountpoint)
	}
	return mounts[len(mounts)-1].Source, nil
}

// MountsUnder lists mountpoints strictly below dir.
func (t *Table) MountsUnder(dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	mounts, err := t.getMounts(mountinfo.PrefixFilter(dir))
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}

	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		if m.Mountpoint != dir {
			out = append(out, m.Mountpoint)
		}
	}
	return out, nil
}

// DevlinksFor lists the links in the watch directory resolving to devname.
func (t *Table) DevlinksFor(devname string) ([]string, error) {
	want, err := t.resolve(devname)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", devname, err)
	}

	entries, err := os.ReadDir(t.watchDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.watchDir, err)
	}

	var links []string
	for _, e := range entries {
		link := filepath.Join(t.watchDir, e.Name())
		if target, err := t.resolve(link); err == nil && target == want {
			links = append(links, link)
		}
	}
	sort.Strings(links)
	return links, nil
}

// DevlinksForMountpoint implements device.MountpointResolver. It prefers
// partition links; a filesystem on a whole device yields the same link twice.
func (t *Table) DevlinksForMountpoint(path string) (string, string, error) {
	source, err := t.Source(path)
	if err != nil {
		return "", "", err
	}

	links, err := t.DevlinksFor(source)
	if err != nil {
		return "", "", err
	}
	if len(links) == 0 {
		return "", "", fmt.Errorf("no device link in %s for %s", t.watchDir, source)
	}

	volume := links[0]
	for _, l := range links {
		if identity.IsPartitionLink(l) {
			volume = l
			break
		}
	}

	root, err := identity.RootDevlinkName(volume)
	if err != nil {
		return volume, volume, nil
	}
	return root, volume, nil
}

// IsBelow reports whether path lies strictly inside dir.
func IsBelow(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
