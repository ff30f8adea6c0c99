package device

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/invariant"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Prober obtains identity information from the operating system.
type Prober interface {
	// ResolveDevlink returns the concrete device behind a device link.
	ResolveDevlink(devlink string) (string, error)
	// DeviceInformation probes a whole block device.
	DeviceInformation(ctx context.Context, devname string) (identity.DeviceInfo, error)
	// VolumeInformation probes a filesystem.
	VolumeInformation(ctx context.Context, devname string) (identity.VolumeInfo, error)
}

// MountpointResolver maps a foreign mountpoint back to device links.
type MountpointResolver interface {
	// DevlinksForMountpoint returns the root device link and the volume's
	// device link. They are equal for a filesystem spanning a whole device.
	DevlinksForMountpoint(path string) (root, volume string, err error)
}

// DropHook is called after a volume has been unmounted and forgotten.
// unmountErr carries a failed unmount, which is otherwise ignored.
type DropHook func(ctx context.Context, d *Device, v *Volume, unmountErr error)

// Outcome reports what a registration call found or changed.
type Outcome struct {
	Device *Device
	Volume *Volume

	// DeviceProbed is set when the device left Synthetic during the call.
	DeviceProbed bool

	// VolumeCreated is set when Volume was created during the call.
	VolumeCreated bool

	// Duplicate is set when the link was already registered.
	Duplicate bool
}

// Changed reports whether the call altered any entity.
func (o Outcome) Changed() bool {
	return o.DeviceProbed || o.VolumeCreated
}

// Stats summarises registry contents.
type Stats struct {
	Devices      int
	DeviceStates map[State]int
	VolumeStates map[VolumeState]int
}

// Registry is the identity-keyed store of devices and volumes.
type Registry struct {
	prober Prober
	mounts MountpointResolver
	env    *autodir.Env
	logger Logger
	onDrop DropHook

	devices     map[ID]*Device
	order       []ID
	byDevlink   map[string]ID
	volumeLinks map[string]VolumeRef
	mountpoints map[string]string
	ids         idRing
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - prober: Source of device and volume identity
//   - env: Directory environment used for volume mountpoints
func NewRegistry(prober Prober, env *autodir.Env) *Registry {
	return &Registry{
		prober:      prober,
		env:         env,
		logger:      noopLogger{},
		devices:     make(map[ID]*Device),
		byDevlink:   make(map[string]ID),
		volumeLinks: make(map[string]VolumeRef),
		mountpoints: make(map[string]string),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetMountpointResolver enables NewEntryByMountpoint.
func (r *Registry) SetMountpointResolver(m MountpointResolver) {
	r.mounts = m
}

// SetDropHook registers a callback run for every dropped volume.
func (r *Registry) SetDropHook(fn DropHook) {
	r.onDrop = fn
}

// NewEntry registers a device link.
//
// Whole-device links create (or promote) a Device, probing its hardware
// identity and, if the device itself carries a filesystem, a whole-device
// Volume. Partition links attach a Volume to the root Device, creating that
// Device as Synthetic if it has not been seen yet. Re-registering a known
// link is a logged no-op returning the existing entities.
//
// Returns:
//   - Outcome: Entities found or created, and what changed
//   - error: ErrResolveFailed, ErrProbeFailed, identity parse errors,
//     ErrNoFreeID or an invariant violation; no entity is created on error
//     except a Synthetic root device already present
func (r *Registry) NewEntry(ctx context.Context, devlink string) (Outcome, error) {
	devname, err := r.prober.ResolveDevlink(devlink)
	if err != nil {
		r.logger.Warn("cannot resolve device link", "devlink", devlink, "error", err)
		return Outcome{}, fmt.Errorf("%w: %s: %w", ErrResolveFailed, devlink, err)
	}

	n, err := identity.ParseVolumeNumber(devname)
	if err != nil {
		r.logger.Warn("unusable device name", "devlink", devlink, "devname", devname, "error", err)
		return Outcome{}, err
	}

	if n == 0 {
		return r.newDeviceEntry(ctx, devlink, devname)
	}
	return r.newVolumeEntry(ctx, devlink, devname)
}

func (r *Registry) newDeviceEntry(ctx context.Context, devlink, devname string) (Outcome, error) {
	if id, ok := r.byDevlink[devlink]; ok {
		d := r.devices[id]
		if d.state != StateSynthetic {
			r.logger.Info("device already registered", "devlink", devlink, "device_id", d.ID)
			out := Outcome{Device: d, Duplicate: true}
			out.Volume = d.VolumeByDevname(devname)
			return out, nil
		}

		r.probeDevice(ctx, d, devname)
		out := Outcome{Device: d, DeviceProbed: true}
		out.Volume, out.VolumeCreated = r.probeWholeDevice(ctx, d, devname)
		return out, nil
	}

	d, err := r.createDevice(devlink)
	if err != nil {
		return Outcome{}, err
	}

	r.probeDevice(ctx, d, devname)
	out := Outcome{Device: d, DeviceProbed: true}
	out.Volume, out.VolumeCreated = r.probeWholeDevice(ctx, d, devname)
	return out, nil
}

func (r *Registry) newVolumeEntry(ctx context.Context, devlink, devname string) (Outcome, error) {
	root, err := identity.RootDevlinkName(devlink)
	if err != nil {
		r.logger.Warn("partition device link without -partN suffix", "devlink", devlink, "devname", devname)
		return Outcome{}, err
	}

	d := r.DeviceByDevlink(root)
	if d != nil {
		if v := d.VolumeByDevname(devname); v != nil {
			r.logger.Info("volume already registered", "devname", devname, "device", d.Name(), "device_id", d.ID)
			return Outcome{Device: d, Volume: v, Duplicate: true}, nil
		}
	}

	info, err := r.prober.VolumeInformation(ctx, devname)
	if err != nil {
		r.logger.Info("no usable filesystem on volume", "devlink", devlink, "devname", devname, "error", err)
		return Outcome{Device: d}, fmt.Errorf("%w: %s: %w", ErrProbeFailed, devname, err)
	}

	if d == nil {
		if d, err = r.createDevice(root); err != nil {
			return Outcome{}, err
		}
		r.logger.Debug("created synthetic device for early volume", "devlink", root, "device_id", d.ID)
	}

	v, err := r.addVolume(d, devlink, devname, info)
	if err != nil {
		return Outcome{Device: d}, err
	}
	return Outcome{Device: d, Volume: v, VolumeCreated: true}, nil
}

// NewEntryByMountpoint registers the devices behind a mountpoint this
// process did not create, remembering the mountpoint for RemoveMountpoint.
func (r *Registry) NewEntryByMountpoint(ctx context.Context, path string) (Outcome, error) {
	if r.mounts == nil {
		return Outcome{}, ErrNoMountpointResolver
	}

	rootLink, volumeLink, err := r.mounts.DevlinksForMountpoint(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving mountpoint %s: %w", path, err)
	}

	var out Outcome
	if rootLink != "" && rootLink != volumeLink {
		rootOut, err := r.NewEntry(ctx, rootLink)
		if err != nil {
			r.logger.Warn("cannot register root device of mountpoint", "mountpoint", path, "devlink", rootLink, "error", err)
		}
		out.DeviceProbed = rootOut.DeviceProbed
	}

	volOut, err := r.NewEntry(ctx, volumeLink)
	if err != nil {
		return out, err
	}

	out.Device = volOut.Device
	out.Volume = volOut.Volume
	out.DeviceProbed = out.DeviceProbed || volOut.DeviceProbed
	out.VolumeCreated = volOut.VolumeCreated
	out.Duplicate = volOut.Duplicate
	if out.Volume == nil && out.Device != nil {
		out.Volume, _ = out.Device.Volume(identity.WholeDevice)
	}

	r.mountpoints[path] = volumeLink
	return out, nil
}

// MountpointDevlink returns the volume link recorded for a foreign mountpoint.
func (r *Registry) MountpointDevlink(path string) (string, bool) {
	link, ok := r.mountpoints[path]
	return link, ok
}

// RemoveEntry removes the device registered under devlink.
//
// before runs first, then every volume is dropped (unmounted and cleaned up
// where mounted), then after runs, then the device is erased and its working
// directory removed. Returns false if devlink names no device.
func (r *Registry) RemoveEntry(ctx context.Context, devlink string, before, after func(*Device)) bool {
	d := r.DeviceByDevlink(devlink)
	if d == nil {
		return false
	}
	r.remove(ctx, d, before, after)
	return true
}

// RemoveByID is RemoveEntry keyed by device ID.
func (r *Registry) RemoveByID(ctx context.Context, id ID, before, after func(*Device)) bool {
	d, ok := r.devices[id]
	if !ok {
		return false
	}
	r.remove(ctx, d, before, after)
	return true
}

// RemoveVolume drops the single volume announced under devlink, leaving its
// device in place. Returns false if devlink names no volume.
func (r *Registry) RemoveVolume(ctx context.Context, devlink string) (*Device, *Volume, bool) {
	ref, ok := r.volumeLinks[devlink]
	if !ok {
		return nil, nil, false
	}
	d, v, ok := r.Volume(ref)
	if !ok {
		delete(r.volumeLinks, devlink)
		return nil, nil, false
	}
	r.dropVolume(ctx, d, v)
	return d, v, true
}

func (r *Registry) remove(ctx context.Context, d *Device, before, after func(*Device)) {
	if before != nil {
		before(d)
	}
	for _, v := range d.Volumes() {
		r.dropVolume(ctx, d, v)
	}
	if after != nil {
		after(d)
	}

	delete(r.devices, d.ID)
	delete(r.byDevlink, d.Devlink)
	r.order = slices.DeleteFunc(r.order, func(id ID) bool { return id == d.ID })

	if d.workdir != nil {
		d.workdir.Cleanup() //nolint:errcheck // logged by Cleanup
	}
	r.logger.Info("device removed", "devlink", d.Devlink, "device_id", d.ID)
}

func (r *Registry) dropVolume(ctx context.Context, d *Device, v *Volume) {
	var unmountErr error
	switch v.state {
	case VolumeMounted, VolumeRejected:
		unmountErr = v.mountpoint.Cleanup(ctx)
		if err := v.markRemoved(); err != nil {
			invariant.Report(r.logger, err) //nolint:errcheck
		}
	case VolumePending:
		v.state = VolumeUnusable
		v.mountpoint.Cleanup(ctx) //nolint:errcheck
	default:
		v.mountpoint.Cleanup(ctx) //nolint:errcheck
	}

	delete(d.volumes, v.Index)
	delete(r.volumeLinks, v.Devlink)
	for path, link := range r.mountpoints {
		if link == v.Devlink {
			delete(r.mountpoints, path)
		}
	}

	r.logger.Debug("volume dropped", "devname", v.Devname, "device_id", d.ID, "state", v.state)
	if r.onDrop != nil {
		r.onDrop(ctx, d, v, unmountErr)
	}
}

func (r *Registry) createDevice(devlink string) (*Device, error) {
	id, err := r.ids.next(func(id ID) bool {
		_, used := r.devices[id]
		return used
	})
	if err != nil {
		r.logger.Error("device table full", "devlink", devlink, "limit", MaxID)
		return nil, err
	}

	d := newDevice(id, devlink)
	r.devices[id] = d
	r.order = append(r.order, id)
	r.byDevlink[devlink] = id
	return d, nil
}

func (r *Registry) probeDevice(ctx context.Context, d *Device, devname string) {
	info, err := r.prober.DeviceInformation(ctx, devname)
	if err != nil {
		r.logger.Warn("cannot probe device", "devlink", d.Devlink, "devname", devname, "error", err)
	}
	if _, perr := promote(d, devname, info, err); perr != nil {
		invariant.Report(r.logger, perr) //nolint:errcheck
		return
	}
	r.logger.Info("device registered",
		"devlink", d.Devlink,
		"device_id", d.ID,
		"state", d.state,
		"uuid", d.UUID,
		"usb_port", d.USBPort,
	)
}

// probeWholeDevice looks for a filesystem spanning the whole device.
func (r *Registry) probeWholeDevice(ctx context.Context, d *Device, devname string) (*Volume, bool) {
	if v := d.VolumeByDevname(devname); v != nil {
		return v, false
	}
	if d.state != StateProbed {
		return nil, false
	}

	info, err := r.prober.VolumeInformation(ctx, devname)
	if err != nil {
		r.logger.Debug("no filesystem on whole device", "devname", devname, "error", err)
		return nil, false
	}
	info.Index = identity.WholeDevice

	v, err := r.addVolume(d, d.Devlink, devname, info)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *Registry) addVolume(d *Device, devlink, devname string, info identity.VolumeInfo) (*Volume, error) {
	if existing, ok := d.volumes[info.Index]; ok {
		return nil, invariant.Report(r.logger, invariant.Errorf(
			"volume index %d on device %s taken by %s, refusing %s",
			info.Index, d.Name(), existing.Devname, devname))
	}

	v := &Volume{
		Index:      info.Index,
		DeviceID:   d.ID,
		Devname:    devname,
		Devlink:    devlink,
		UUID:       info.UUID,
		Label:      info.Label,
		FSType:     info.FSType,
		Info:       info,
		state:      VolumePending,
		mountpoint: r.env.NewMountpoint(),
	}
	d.volumes[v.Index] = v
	if devlink != d.Devlink {
		r.volumeLinks[devlink] = v.Ref()
	}

	r.logger.Info("volume registered",
		"devname", devname,
		"device_id", d.ID,
		"index", v.Index,
		"fstype", v.FSType,
		"label", v.Label,
	)
	return v, nil
}

// promote moves a Synthetic device to Probed (or Broken when probeErr is set),
// filling in the probed identity. It is the only place a device leaves
// Synthetic.
func promote(d *Device, devname string, info identity.DeviceInfo, probeErr error) (*Device, error) {
	if d.state != StateSynthetic {
		return d, invariant.Errorf("promoting device %s in state %s", d.Name(), d.state)
	}

	d.Devname = devname
	d.DisplayName = filepath.Base(d.Devlink)
	if probeErr != nil {
		d.state = StateBroken
		return d, nil
	}

	d.Info = info
	d.UUID = info.UUID
	d.USBPort = info.USBPort
	d.Description = info.DisplayName()
	d.state = StateProbed
	return d, nil
}

// Device returns the device with the given ID.
func (r *Registry) Device(id ID) (*Device, bool) {
	d, ok := r.devices[id]
	return d, ok
}

// DeviceByDevlink returns the device registered under devlink, or nil.
func (r *Registry) DeviceByDevlink(devlink string) *Device {
	if id, ok := r.byDevlink[devlink]; ok {
		return r.devices[id]
	}
	return nil
}

// Volume resolves a volume reference.
func (r *Registry) Volume(ref VolumeRef) (*Device, *Volume, bool) {
	d, ok := r.devices[ref.Device]
	if !ok {
		return nil, nil, false
	}
	v, ok := d.volumes[ref.Index]
	if !ok {
		return d, nil, false
	}
	return d, v, true
}

// Devices returns every device in registration order.
func (r *Registry) Devices() []*Device {
	out := make([]*Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Stats counts devices and volumes by state.
func (r *Registry) Stats() Stats {
	s := Stats{
		Devices:      len(r.devices),
		DeviceStates: make(map[State]int),
		VolumeStates: make(map[VolumeState]int),
	}
	for _, d := range r.devices {
		s.DeviceStates[d.state]++
		for _, v := range d.volumes {
			s.VolumeStates[v.state]++
		}
	}
	return s
}
