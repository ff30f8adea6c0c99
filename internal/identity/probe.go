package identity

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SyntheticPrefix marks identifiers that were derived locally and must never
// be persisted or compared across daemon restarts.
const SyntheticPrefix = "DO-NOT-STORE:"

// UUIDSource records where a UUID came from.
type UUIDSource string

const (
	SourceFilesystem     UUIDSource = "filesystem"
	SourcePartitionEntry UUIDSource = "partition_entry"
	SourcePartitionTable UUIDSource = "partition_table"
	SourceSynthetic      UUIDSource = "synthetic"
)

// DeviceInfo is the hardware identity of a whole block device.
type DeviceInfo struct {
	UUID       string
	UUIDSource UUIDSource
	Bus        string
	Vendor     string
	Model      string
	Serial     string
	// USBPort is the sysfs port path ("2-1.4") of the hosting USB device,
	// empty for non-USB devices.
	USBPort string
}

// Synthetic reports whether the UUID was derived locally.
func (d DeviceInfo) Synthetic() bool {
	return d.UUIDSource == SourceSynthetic
}

// DisplayName is a human-readable name assembled from the descriptor fields.
func (d DeviceInfo) DisplayName() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{d.Vendor, d.Model} {
		if s = strings.TrimSpace(strings.ReplaceAll(s, "_", " ")); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// VolumeInfo is the filesystem identity of a volume.
type VolumeInfo struct {
	// Index is the partition number, or WholeDevice.
	Index      int
	UUID       string
	UUIDSource UUIDSource
	Label      string
	FSType     string
}

// Synthetic reports whether the UUID was derived locally.
func (v VolumeInfo) Synthetic() bool {
	return v.UUIDSource == SourceSynthetic
}

// blkid export keys mapped onto their udev property equivalents.
var keyAliases = map[string]string{
	"UUID":     "ID_FS_UUID",
	"LABEL":    "ID_FS_LABEL",
	"TYPE":     "ID_FS_TYPE",
	"PARTUUID": "ID_PART_ENTRY_UUID",
	"PTUUID":   "ID_PART_TABLE_UUID",
}

// properties is parsed export-format output.
type properties struct {
	values  map[string]string
	devpath string
}

// parseExport reads KEY=value lines. "E: " prefixes are stripped, single or
// double quotes around values removed, and a "P: " line recorded as the sysfs
// device path. Later duplicates win.
func parseExport(raw string) properties {
	props := properties{values: make(map[string]string)}

	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if p, ok := strings.CutPrefix(line, "P:"); ok {
			props.devpath = strings.TrimSpace(p)
			continue
		}
		if e, ok := strings.CutPrefix(line, "E:"); ok {
			line = strings.TrimSpace(e)
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || !validKey(key) {
			continue
		}
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		props.values[key] = unquote(value)
	}
	return props
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= 'A' && c <= 'Z') && c != '_' && !isDigit(c) {
			return false
		}
	}
	return true
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func (p properties) get(key string) string {
	return strings.TrimSpace(p.values[key])
}

// bestUUID applies the priority filesystem > partition entry > partition table.
func (p properties) bestUUID() (string, UUIDSource) {
	if v := p.get("ID_FS_UUID"); v != "" {
		return v, SourceFilesystem
	}
	if v := p.get("ID_PART_ENTRY_UUID"); v != "" {
		return v, SourcePartitionEntry
	}
	if v := p.get("ID_PART_TABLE_UUID"); v != "" {
		return v, SourcePartitionTable
	}
	return "", ""
}

// ParseDeviceInfo extracts the identity of a whole device from probe output.
// path is the concrete device path, used to derive a synthetic UUID when the
// output carries none.
func ParseDeviceInfo(path, raw string) DeviceInfo {
	props := parseExport(raw)

	info := DeviceInfo{
		Bus:     props.get("ID_BUS"),
		Vendor:  props.get("ID_VENDOR"),
		Model:   props.get("ID_MODEL"),
		Serial:  props.get("ID_SERIAL_SHORT"),
		USBPort: USBPortFromDevpath(props.devpath),
	}
	if info.Serial == "" {
		info.Serial = props.get("ID_SERIAL")
	}

	info.UUID, info.UUIDSource = props.bestUUID()
	if info.UUID == "" {
		info.UUID, info.UUIDSource = SyntheticUUID(path), SourceSynthetic
	}
	return info
}

// ParseVolumeInfo extracts filesystem identity from probe output.
//
// It fails with ErrNoFilesystem when no filesystem type is present. The label
// falls back to the filesystem type.
func ParseVolumeInfo(path, raw string) (VolumeInfo, error) {
	props := parseExport(raw)

	fstype := props.get("ID_FS_TYPE")
	if fstype == "" {
		return VolumeInfo{}, fmt.Errorf("%w: %s", ErrNoFilesystem, path)
	}

	n, err := ParseVolumeNumber(path)
	if err != nil {
		return VolumeInfo{}, err
	}
	if n == 0 {
		n = WholeDevice
	}

	info := VolumeInfo{
		Index:  n,
		FSType: fstype,
		Label:  props.get("ID_FS_LABEL"),
	}
	if info.Label == "" {
		info.Label = fstype
	}

	info.UUID, info.UUIDSource = props.bestUUID()
	if info.UUID == "" {
		info.UUID, info.UUIDSource = SyntheticUUID(path), SourceSynthetic
	}
	return info, nil
}

// USBPortFromDevpath returns the USB port component of a sysfs device path:
// the segment preceding the first "hostN" segment, with any ":config.iface"
// suffix removed. It returns "" when the path has no such structure.
//
//	/devices/pci0000:00/0000:00:14.0/usb2/2-1/2-1:1.0/host6/target6:0:0/... -> "2-1"
func USBPortFromDevpath(devpath string) string {
	segs := strings.Split(strings.Trim(devpath, "/"), "/")
	for i, seg := range segs {
		if !isHostSegment(seg) || i == 0 {
			continue
		}
		port, _, _ := strings.Cut(segs[i-1], ":")
		if port == "" || !strings.Contains(port, "-") {
			return ""
		}
		return port
	}
	return ""
}

func isHostSegment(seg string) bool {
	n, ok := strings.CutPrefix(seg, "host")
	if !ok || n == "" {
		return false
	}
	for i := 0; i < len(n); i++ {
		if !isDigit(n[i]) {
			return false
		}
	}
	return true
}

// processNamespace is drawn once per process so synthetic UUIDs are stable for
// the lifetime of the daemon but differ across restarts.
var processNamespace = uuid.New()

// SyntheticUUID derives a process-local identifier from a device path.
// The result carries SyntheticPrefix and must never be persisted.
func SyntheticUUID(path string) string {
	return SyntheticPrefix + uuid.NewSHA1(processNamespace, []byte(path)).String()
}

// IsSynthetic reports whether id was produced by SyntheticUUID.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticPrefix)
}
