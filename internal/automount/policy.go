package automount

import (
	"strings"

	"github.com/nerrad567/automountd/internal/device"
)

// DefaultDevicePrefixes admits USB and ATA attached devices.
var DefaultDevicePrefixes = []string{"usb-", "ata-"}

// builtinFSOptions is the stock fstype -> extra mount options table.
var builtinFSOptions = map[string]string{
	"ext2":    "errors=continue",
	"ext3":    "errors=continue",
	"ext4":    "errors=continue",
	"vfat":    "umask=0022,utf8",
	"fat":     "umask=0022,utf8",
	"msdos":   "umask=0022,utf8",
	"exfat":   "umask=0022,iocharset=utf8",
	"ntfs":    "umask=0022",
	"ntfs3":   "umask=0022",
	"btrfs":   "",
	"xfs":     "",
	"iso9660": "",
	"udf":     "",
	"hfsplus": "",
}

// FSMountOptions maps normalised filesystem types to extra mount options.
type FSMountOptions struct {
	table map[string]string
}

// NewFSMountOptions returns the built-in table with overrides merged over it.
// An override with an empty value means "no extra options" for that type.
func NewFSMountOptions(overrides map[string]string) FSMountOptions {
	table := make(map[string]string, len(builtinFSOptions)+len(overrides))
	for k, v := range builtinFSOptions {
		table[k] = v
	}
	for k, v := range overrides {
		table[normaliseFSType(k)] = strings.TrimSpace(v)
	}
	return FSMountOptions{table: table}
}

// Lookup returns the mount arguments for fstype ("-o", opts) and whether the
// type is known. Unknown and option-less types yield no arguments.
func (o FSMountOptions) Lookup(fstype string) ([]string, bool) {
	opts, ok := o.table[normaliseFSType(fstype)]
	if !ok || opts == "" {
		return nil, ok
	}
	return []string{"-o", opts}, true
}

func normaliseFSType(fstype string) string {
	return strings.ToLower(strings.TrimSpace(fstype))
}

// VolumeFilter decides whether a volume of an accepted device may be mounted.
type VolumeFilter func(d *device.Device, v *device.Volume) bool

// AcceptAllVolumes is the default VolumeFilter.
func AcceptAllVolumes(*device.Device, *device.Volume) bool { return true }

// acceptDevice applies the name-prefix allow-list. An empty list admits all.
func acceptDevice(prefixes []string, d *device.Device) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(d.DisplayName, p) {
			return true
		}
	}
	return false
}
