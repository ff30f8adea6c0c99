package device

import (
	"path/filepath"
	"slices"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/invariant"
)

// ID is a registry-local device handle. It is never persisted.
type ID uint16

// MaxID is the largest ID the ring hands out.
const MaxID ID = 999

// State is a Device lifecycle state.
type State int

const (
	StateSynthetic State = iota
	StateProbed
	StateBroken
	StateOK
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateSynthetic:
		return "synthetic"
	case StateProbed:
		return "probed"
	case StateBroken:
		return "broken"
	case StateOK:
		return "ok"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// VolumeState is a Volume lifecycle state.
type VolumeState int

const (
	VolumePending VolumeState = iota
	VolumeMounted
	VolumeUnusable
	VolumeRejected
	VolumeRemoved
)

func (s VolumeState) String() string {
	switch s {
	case VolumePending:
		return "pending"
	case VolumeMounted:
		return "mounted"
	case VolumeUnusable:
		return "unusable"
	case VolumeRejected:
		return "rejected"
	case VolumeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// AllVolumeStates lists every VolumeState, for metrics.
var AllVolumeStates = []VolumeState{VolumePending, VolumeMounted, VolumeUnusable, VolumeRejected, VolumeRemoved}

// VolumeRef identifies a volume without holding it.
type VolumeRef struct {
	Device ID
	Index  int
}

// Device is one physical block device.
type Device struct {
	ID ID

	// Devlink is the device-link path that identifies the device externally.
	Devlink string

	// Devname is the concrete block device, empty while Synthetic.
	Devname string

	// DisplayName is the device-link base name, set on probe. The device
	// filter matches against it.
	DisplayName string

	// Description is the vendor/model string from the probe, if any.
	Description string

	UUID    string
	USBPort string
	Info    identity.DeviceInfo

	state   State
	workdir *autodir.Directory
	volumes map[int]*Volume
}

func newDevice(id ID, devlink string) *Device {
	return &Device{
		ID:      id,
		Devlink: devlink,
		state:   StateSynthetic,
		volumes: make(map[int]*Volume),
	}
}

// Name is the device-link base name, available even while Synthetic.
func (d *Device) Name() string {
	return filepath.Base(d.Devlink)
}

// State returns the lifecycle state.
func (d *Device) State() State {
	return d.state
}

// Accept moves a Probed device to Ok.
func (d *Device) Accept() error {
	if d.state != StateProbed {
		return invariant.Errorf("accepting device %s in state %s", d.Name(), d.state)
	}
	d.state = StateOK
	return nil
}

// Reject moves a Probed device to Rejected. Rejection is permanent.
func (d *Device) Reject() error {
	if d.state != StateProbed {
		return invariant.Errorf("rejecting device %s in state %s", d.Name(), d.state)
	}
	d.state = StateRejected
	return nil
}

// WorkingDirectory returns the directory holding the device's mountpoints,
// or nil if none was assigned.
func (d *Device) WorkingDirectory() *autodir.Directory {
	return d.workdir
}

// SetWorkingDirectory assigns the working directory. A device gets at most
// one per lifetime.
func (d *Device) SetWorkingDirectory(dir *autodir.Directory) error {
	if d.workdir != nil {
		return invariant.Errorf("device %s already has working directory %s", d.Name(), d.workdir.Path())
	}
	d.workdir = dir
	return nil
}

// Volume returns the volume with the given index.
func (d *Device) Volume(index int) (*Volume, bool) {
	v, ok := d.volumes[index]
	return v, ok
}

// VolumeByDevname finds a volume by its concrete device path.
func (d *Device) VolumeByDevname(devname string) *Volume {
	for _, v := range d.volumes {
		if v.Devname == devname {
			return v
		}
	}
	return nil
}

// Volumes returns the volumes ordered by index.
func (d *Device) Volumes() []*Volume {
	out := make([]*Volume, 0, len(d.volumes))
	for _, v := range d.volumes {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *Volume) int { return a.Index - b.Index })
	return out
}

// Volume is one mountable filesystem on a Device.
type Volume struct {
	Index    int
	DeviceID ID

	// Devname is the concrete block device ("/dev/sdb1").
	Devname string

	// Devlink is the device link the volume was announced under.
	Devlink string

	UUID   string
	Label  string
	FSType string
	Info   identity.VolumeInfo

	// Symlink is the label-indexed user link, if one was created.
	Symlink string

	state      VolumeState
	mountpoint *autodir.Mountpoint
}

// Ref returns the volume's arena reference.
func (v *Volume) Ref() VolumeRef {
	return VolumeRef{Device: v.DeviceID, Index: v.Index}
}

// State returns the lifecycle state.
func (v *Volume) State() VolumeState {
	return v.state
}

// Mountpoint returns the volume's mountpoint.
func (v *Volume) Mountpoint() *autodir.Mountpoint {
	return v.mountpoint
}

// MarkMounted records a successful (or adopted) mount.
func (v *Volume) MarkMounted() error {
	return v.transition(VolumeMounted, VolumePending)
}

// MarkUnusable records a volume that could not be mounted.
func (v *Volume) MarkUnusable() error {
	return v.transition(VolumeUnusable, VolumePending)
}

// Reject records a volume refused by policy.
func (v *Volume) Reject() error {
	return v.transition(VolumeRejected, VolumePending)
}

func (v *Volume) markRemoved() error {
	return v.transition(VolumeRemoved, VolumeMounted, VolumeRejected)
}

func (v *Volume) transition(to VolumeState, from ...VolumeState) error {
	if !slices.Contains(from, v.state) {
		return invariant.Errorf("volume %s: %s -> %s", v.Devname, v.state, to)
	}
	v.state = to
	return nil
}
