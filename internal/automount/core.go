package automount

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/invariant"
)

// Config holds automount policy and layout.
type Config struct {
	// WorkingDirectory is the root under which device directories are made.
	WorkingDirectory string

	// SymlinkDirectory receives label-named links to mountpoints. Empty
	// disables links.
	SymlinkDirectory string

	// DevicePrefixes is the device-name allow-list.
	DevicePrefixes []string

	// FSOptions overrides the built-in fstype option table.
	FSOptions map[string]string
}

// Core applies automount policy to registry outcomes.
type Core struct {
	cfg      Config
	registry *device.Registry
	env      *autodir.Env
	mounts   autodir.MountLister
	fsopts   FSMountOptions
	filter   VolumeFilter
	notifier Notifier
	metrics  Metrics
	logger   Logger
}

// NewCore creates a Core over registry. The registry's drop hook is taken
// over by the Core.
func NewCore(cfg Config, registry *device.Registry, env *autodir.Env) *Core {
	c := &Core{
		cfg:      cfg,
		registry: registry,
		env:      env,
		fsopts:   NewFSMountOptions(cfg.FSOptions),
		filter:   AcceptAllVolumes,
		notifier: noopNotifier{},
		metrics:  NoopMetrics{},
		logger:   noopLogger{},
	}
	registry.SetDropHook(c.volumeDropped)
	return c
}

// SetLogger sets the logger.
func (c *Core) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetNotifier sets the notification sink.
func (c *Core) SetNotifier(n Notifier) {
	if n != nil {
		c.notifier = n
	}
}

// SetMetrics sets the metrics sink.
func (c *Core) SetMetrics(m Metrics) {
	if m != nil {
		c.metrics = m
	}
}

// SetMountLister enables the residual-mount sweep.
func (c *Core) SetMountLister(m autodir.MountLister) {
	c.mounts = m
}

// SetVolumeFilter replaces the pass-through volume filter.
func (c *Core) SetVolumeFilter(f VolumeFilter) {
	if f != nil {
		c.filter = f
	}
}

// Start clears residue of a previous run and prepares the directories.
func (c *Core) Start(ctx context.Context) error {
	c.env.Sweep(ctx, c.cfg.WorkingDirectory, c.mounts, false)
	if err := c.env.FS.MkdirAll(c.cfg.WorkingDirectory, 0o755); err != nil {
		return err
	}
	if c.cfg.SymlinkDirectory != "" {
		if err := c.env.FS.MkdirAll(c.cfg.SymlinkDirectory, 0o755); err != nil {
			return err
		}
		c.pruneSymlinks()
	}
	c.logger.Info("automounter ready",
		"working_directory", c.cfg.WorkingDirectory,
		"symlink_directory", c.cfg.SymlinkDirectory,
		"device_prefixes", c.cfg.DevicePrefixes,
	)
	return nil
}

// HandleNewDevice processes a device link that appeared.
func (c *Core) HandleNewDevice(ctx context.Context, devlink string) {
	out, err := c.registry.NewEntry(ctx, devlink)
	if err != nil {
		c.logger.Info("device link not registered", "devlink", devlink, "error", err)
		return
	}
	c.apply(ctx, out)
	c.observe()
}

// HandleRemovedDevice processes a device link that vanished.
func (c *Core) HandleRemovedDevice(ctx context.Context, devlink string) {
	if c.registry.RemoveEntry(ctx, devlink, c.beforeRemove(ctx), c.afterRemove(ctx)) {
		c.observe()
		return
	}
	if d, v, ok := c.registry.RemoveVolume(ctx, devlink); ok {
		c.logger.Info("volume removed", "devlink", devlink, "device_id", d.ID, "index", v.Index)
		c.observe()
		return
	}
	c.logger.Info("cannot remove unknown device link", "devlink", devlink)
}

// HandleNewMountpoint adopts a mountpoint created by another agent.
func (c *Core) HandleNewMountpoint(ctx context.Context, path string) {
	out, err := c.registry.NewEntryByMountpoint(ctx, path)
	if err != nil {
		c.logger.Info("foreign mountpoint not registered", "mountpoint", path, "error", err)
		return
	}

	d, v := out.Device, out.Volume
	if d != nil && d.WorkingDirectory() == nil {
		dir := c.env.NewDirectory(filepath.Dir(path))
		dir.Probe(true)
		if err := d.SetWorkingDirectory(dir); err != nil {
			invariant.Report(c.logger, err) //nolint:errcheck
		}
	}
	if v != nil {
		switch mp := v.Mountpoint(); {
		case mp.Path() == "":
			mp.Set(ctx, path)
		case mp.Path() != path:
			c.logger.Warn("volume already has a mountpoint", "devname", v.Devname, "mountpoint", mp.Path(), "new", path)
		}
	}

	c.apply(ctx, out)
	if d != nil && v != nil && !out.VolumeCreated && v.State() == device.VolumePending {
		c.mountVolume(ctx, d, v)
	}
	c.observe()
}

// HandleRemovedMountpoint forgets a foreign mountpoint. The device goes too
// once it has no volumes left and is not ours.
func (c *Core) HandleRemovedMountpoint(ctx context.Context, path string) {
	link, ok := c.registry.MountpointDevlink(path)
	if !ok {
		c.logger.Debug("ignoring unknown mountpoint removal", "mountpoint", path)
		return
	}

	d, _, ok := c.registry.RemoveVolume(ctx, link)
	if !ok {
		c.HandleRemovedDevice(ctx, link)
		return
	}
	if wd := d.WorkingDirectory(); len(d.Volumes()) == 0 && wd != nil && wd.State() == autodir.External {
		c.registry.RemoveByID(ctx, d.ID, c.beforeRemove(ctx), c.afterRemove(ctx))
	}
	c.observe()
}

// Shutdown drains every device, then sweeps the working directory so no
// mount survives.
func (c *Core) Shutdown(ctx context.Context) {
	c.logger.Info("shutting down automounter", "devices", c.registry.Len())
	for _, d := range c.registry.Devices() {
		c.registry.RemoveByID(ctx, d.ID, c.beforeRemove(ctx), c.afterRemove(ctx))
	}
	c.env.Sweep(ctx, c.cfg.WorkingDirectory, c.mounts, true)
	c.observe()
}

// Snapshot returns views of every device in registration order.
func (c *Core) Snapshot() []device.DeviceView {
	devices := c.registry.Devices()
	out := make([]device.DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.View())
	}
	return out
}

func (c *Core) apply(ctx context.Context, out device.Outcome) {
	d := out.Device
	if d == nil {
		return
	}

	if out.DeviceProbed && d.State() == device.StateProbed {
		c.admitDevice(ctx, d)
		return
	}

	if !out.VolumeCreated || out.Volume == nil {
		return
	}
	switch d.State() {
	case device.StateOK:
		c.mountVolume(ctx, d, out.Volume)
	case device.StateRejected:
		out.Volume.Reject() //nolint:errcheck // fresh volumes are Pending
	default:
		c.logger.Debug("volume waits for its device", "devname", out.Volume.Devname, "device_state", d.State())
	}
}

func (c *Core) admitDevice(ctx context.Context, d *device.Device) {
	if !acceptDevice(c.cfg.DevicePrefixes, d) {
		d.Reject() //nolint:errcheck // state checked by caller
		for _, v := range d.Volumes() {
			if v.State() == device.VolumePending {
				v.Reject() //nolint:errcheck
			}
		}
		c.logger.Info("device rejected by filter", "device", d.DisplayName, "device_id", d.ID)
		return
	}

	d.Accept() //nolint:errcheck // state checked by caller
	if !c.ensureWorkingDirectory(d) {
		return
	}
	c.logger.Info("device accepted", "device", d.DisplayName, "device_id", d.ID, "uuid", d.UUID)
	c.notifier.DeviceAdded(ctx, d.View())

	for _, v := range d.Volumes() {
		if v.State() == device.VolumePending {
			c.mountVolume(ctx, d, v)
		}
	}
}

func (c *Core) ensureWorkingDirectory(d *device.Device) bool {
	if wd := d.WorkingDirectory(); wd != nil {
		return wd.Exists(autodir.NotFound)
	}

	dir := c.env.NewDirectory(filepath.Join(c.cfg.WorkingDirectory, strconv.Itoa(int(d.ID))))
	if err := dir.Create(); err != nil {
		c.logger.Error("cannot create device working directory", "device_id", d.ID, "error", err)
		return false
	}
	if err := d.SetWorkingDirectory(dir); err != nil {
		invariant.Report(c.logger, err) //nolint:errcheck
		return false
	}
	return true
}

func (c *Core) mountVolume(ctx context.Context, d *device.Device, v *device.Volume) {
	if v.State() != device.VolumePending {
		invariant.Report(c.logger, invariant.Errorf("mounting %s in state %s", v.Devname, v.State())) //nolint:errcheck
		return
	}
	wd := d.WorkingDirectory()
	if d.State() != device.StateOK || wd == nil || !wd.Exists(autodir.NotFound) {
		c.logger.Debug("volume left pending", "devname", v.Devname, "device_state", d.State())
		return
	}
	if !c.filter(d, v) {
		v.Reject() //nolint:errcheck
		c.logger.Info("volume rejected by filter", "devname", v.Devname)
		return
	}

	if !wd.Exists(autodir.JustWatching) {
		c.adoptVolume(ctx, d, v)
		return
	}

	mp := v.Mountpoint()
	mp.Set(ctx, filepath.Join(wd.Path(), volumeDirName(v.Index)))
	if err := mp.Create(); err != nil {
		c.mountFailed(ctx, v, err)
		return
	}

	opts, known := c.fsopts.Lookup(v.FSType)
	if !known {
		c.logger.Warn("no mount options for filesystem type", "fstype", v.FSType, "devname", v.Devname)
	}
	if err := mp.Mount(ctx, v.Devname, opts...); err != nil {
		c.mountFailed(ctx, v, err)
		return
	}

	v.MarkMounted() //nolint:errcheck // Pending checked above
	c.metrics.MountResult(true)
	c.createSymlink(v)
	c.logger.Info("volume mounted",
		"devname", v.Devname,
		"mountpoint", mp.Path(),
		"fstype", v.FSType,
		"label", v.Label,
		"device_id", d.ID,
	)
	c.notifier.VolumeAdded(ctx, v.View(), d.View())
}

// adoptVolume records a volume some other agent mounted.
func (c *Core) adoptVolume(ctx context.Context, d *device.Device, v *device.Volume) {
	mp := v.Mountpoint()
	if mp.Path() == "" || !mp.Probe(ctx, true) {
		c.logger.Debug("foreign volume not mounted yet", "devname", v.Devname, "mountpoint", mp.Path())
		return
	}
	v.MarkMounted() //nolint:errcheck
	c.logger.Info("volume adopted", "devname", v.Devname, "mountpoint", mp.Path(), "device_id", d.ID)
	c.notifier.VolumeAdded(ctx, v.View(), d.View())
}

func (c *Core) mountFailed(ctx context.Context, v *device.Volume, err error) {
	v.MarkUnusable()            //nolint:errcheck
	v.Mountpoint().Cleanup(ctx) //nolint:errcheck
	c.metrics.MountResult(false)
	c.logger.Warn("volume unusable", "devname", v.Devname, "fstype", v.FSType, "error", err)
}

func (c *Core) volumeDropped(_ context.Context, d *device.Device, v *device.Volume, unmountErr error) {
	c.removeSymlink(v)
	if v.State() == device.VolumeRemoved && v.Mountpoint().Path() != "" {
		c.metrics.UnmountResult(unmountErr == nil)
	}
	c.logger.Debug("volume released", "devname", v.Devname, "device_id", d.ID, "state", v.State())
}

// beforeRemove and afterRemove notify only for devices that were announced.
func (c *Core) beforeRemove(ctx context.Context) func(*device.Device) {
	return func(d *device.Device) {
		if d.State() == device.StateOK {
			c.notifier.DeviceWillBeRemoved(ctx, d.View())
		}
	}
}

func (c *Core) afterRemove(ctx context.Context) func(*device.Device) {
	return func(d *device.Device) {
		if d.State() == device.StateOK {
			c.notifier.DeviceRemoved(ctx, d.View())
		}
	}
}

func (c *Core) observe() {
	c.metrics.ObserveRegistry(c.registry.Stats())
}

func volumeDirName(index int) string {
	if index == identity.WholeDevice {
		return "disk"
	}
	return strconv.Itoa(index)
}
