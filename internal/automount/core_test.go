package automount

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/device"
)

func TestCore_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-X", "/dev/sdb")
	f.prober.addVolume("usb-X-part1", "/dev/sdb1", "ext4", "DATA")

	f.core.HandleNewDevice(ctx, byID+"usb-X")

	d := f.registry.DeviceByDevlink(byID + "usb-X")
	if d == nil || d.State() != device.StateOK {
		t.Fatalf("device = %+v, want accepted", d)
	}
	devDir := filepath.Join(f.workdir, "1")
	if !exists(devDir) {
		t.Fatalf("working directory %s not created", devDir)
	}

	f.core.HandleNewDevice(ctx, byID+"usb-X-part1")

	v, _ := d.Volume(1)
	if v == nil || v.State() != device.VolumeMounted {
		t.Fatalf("volume = %+v, want mounted", v)
	}
	mp := filepath.Join(devDir, "1")
	if v.Mountpoint().Path() != mp {
		t.Errorf("mountpoint = %q, want %q", v.Mountpoint().Path(), mp)
	}
	mounts := f.runner.callsOf("/bin/mount")
	if len(mounts) != 1 || mounts[0] != "/bin/mount -o ro -o errors=continue /dev/sdb1 "+mp {
		t.Errorf("mount calls = %q", mounts)
	}
	assertEvents(t, f.notifier.all(), []string{"device-added:usb-X", "volume-added:1"})

	link := filepath.Join(f.linkdir, "DATA")
	if target, err := os.Readlink(link); err != nil || target != mp {
		t.Errorf("label link = %q, %v, want %q", target, err, mp)
	}

	f.core.HandleRemovedDevice(ctx, byID+"usb-X")

	if unmounts := f.runner.callsOf("/bin/umount"); len(unmounts) != 1 || unmounts[0] != "/bin/umount "+mp {
		t.Errorf("umount calls = %q", unmounts)
	}
	if exists(mp) || exists(devDir) {
		t.Error("mountpoint or working directory left behind")
	}
	if exists(link) {
		t.Error("label link left behind")
	}
	if f.registry.Len() != 0 {
		t.Errorf("registry has %d devices, want 0", f.registry.Len())
	}
	assertEvents(t, f.notifier.all(), []string{
		"device-added:usb-X",
		"volume-added:1",
		"device-removing:usb-X",
		"device-removed:usb-X",
	})
	if f.metrics.mounts != 1 || f.metrics.unmounts != 1 {
		t.Errorf("metrics mounts=%d unmounts=%d, want 1/1", f.metrics.mounts, f.metrics.unmounts)
	}
}

func TestCore_RejectedDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("scsi-Fast", "/dev/sdn")
	f.prober.addVolume("scsi-Fast-part1", "/dev/sdn1", "ext4", "root")

	f.core.HandleNewDevice(ctx, byID+"scsi-Fast")
	f.core.HandleNewDevice(ctx, byID+"scsi-Fast-part1")

	d := f.registry.DeviceByDevlink(byID + "scsi-Fast")
	if d.State() != device.StateRejected {
		t.Errorf("device state = %v, want %v", d.State(), device.StateRejected)
	}
	if v, _ := d.Volume(1); v == nil || v.State() != device.VolumeRejected {
		t.Errorf("volume = %+v, want rejected", v)
	}
	if len(f.runner.callsOf("/bin/mount")) != 0 {
		t.Error("rejected device was mounted")
	}
	if d.WorkingDirectory() != nil {
		t.Error("rejected device got a working directory")
	}

	// Rejection is sticky.
	f.core.HandleNewDevice(ctx, byID+"scsi-Fast")
	if d.State() != device.StateRejected {
		t.Errorf("device state after re-announce = %v", d.State())
	}

	f.core.HandleRemovedDevice(ctx, byID+"scsi-Fast")
	if len(f.notifier.all()) != 0 {
		t.Errorf("notifications for rejected device: %q", f.notifier.all())
	}
}

func TestCore_VolumesBeforeDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-Late", "/dev/sdc")
	for _, n := range []string{"1", "2", "5"} {
		f.prober.addVolume("usb-Late-part"+n, "/dev/sdc"+n, "vfat", "V"+n)
		f.core.HandleNewDevice(ctx, byID+"usb-Late-part"+n)
	}

	if len(f.runner.callsOf("/bin/mount")) != 0 {
		t.Fatal("volumes mounted before their device was accepted")
	}
	if len(f.notifier.all()) != 0 {
		t.Fatalf("notifications before device accepted: %q", f.notifier.all())
	}

	f.core.HandleNewDevice(ctx, byID+"usb-Late")

	d := f.registry.DeviceByDevlink(byID + "usb-Late")
	for _, v := range d.Volumes() {
		if v.State() != device.VolumeMounted {
			t.Errorf("volume %d state = %v, want mounted", v.Index, v.State())
		}
	}
	if n := len(f.runner.callsOf("/bin/mount")); n != 3 {
		t.Errorf("mount calls = %d, want 3", n)
	}
	assertEvents(t, f.notifier.all(), []string{
		"device-added:usb-Late", "volume-added:1", "volume-added:2", "volume-added:5",
	})

	// vfat gets FAT-family options.
	if m := f.runner.callsOf("/bin/mount")[0]; m != "/bin/mount -o ro -o umask=0022,utf8 /dev/sdc1 "+filepath.Join(f.workdir, "1", "1") {
		t.Errorf("mount call = %q", m)
	}
}

func TestCore_MountFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.runner.fail["mount"] = true
	f.prober.addDevice("usb-Bad", "/dev/sdd")
	f.prober.addVolume("usb-Bad-part1", "/dev/sdd1", "ext4", "bad")

	f.core.HandleNewDevice(ctx, byID+"usb-Bad")
	f.core.HandleNewDevice(ctx, byID+"usb-Bad-part1")

	d := f.registry.DeviceByDevlink(byID + "usb-Bad")
	v, _ := d.Volume(1)
	if v.State() != device.VolumeUnusable {
		t.Errorf("volume state = %v, want %v", v.State(), device.VolumeUnusable)
	}
	if exists(filepath.Join(f.workdir, "1", "1")) {
		t.Error("partial mountpoint directory left behind")
	}
	assertEvents(t, f.notifier.all(), []string{"device-added:usb-Bad"})
	if f.metrics.mountFailures != 1 {
		t.Errorf("mount failures = %d, want 1", f.metrics.mountFailures)
	}

	f.core.HandleRemovedDevice(ctx, byID+"usb-Bad")
	if n := len(f.runner.callsOf("/bin/umount")); n != 0 {
		t.Errorf("umount called %d times for a volume never mounted", n)
	}
}

func TestCore_UnknownFSTypeStillMounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-Odd", "/dev/sde")
	f.prober.addVolume("usb-Odd-part1", "/dev/sde1", "zfs_member", "")

	f.core.HandleNewDevice(ctx, byID+"usb-Odd")
	f.core.HandleNewDevice(ctx, byID+"usb-Odd-part1")

	mounts := f.runner.callsOf("/bin/mount")
	if len(mounts) != 1 || mounts[0] != "/bin/mount -o ro /dev/sde1 "+filepath.Join(f.workdir, "1", "1") {
		t.Errorf("mount calls = %q, want base options only", mounts)
	}
}

func TestCore_LabelLinkCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-A", "/dev/sdf")
	f.prober.addVolume("usb-A-part1", "/dev/sdf1", "vfat", "STICK")
	f.prober.addDevice("usb-B", "/dev/sdg")
	f.prober.addVolume("usb-B-part1", "/dev/sdg1", "vfat", "STICK")

	for _, l := range []string{"usb-A", "usb-A-part1", "usb-B", "usb-B-part1"} {
		f.core.HandleNewDevice(ctx, byID+l)
	}

	if !exists(filepath.Join(f.linkdir, "STICK")) || !exists(filepath.Join(f.linkdir, "STICK_2")) {
		entries, _ := os.ReadDir(f.linkdir)
		t.Errorf("label links = %v, want STICK and STICK_2", entries)
	}

	f.core.HandleRemovedDevice(ctx, byID+"usb-A")
	if _, err := os.Lstat(filepath.Join(f.linkdir, "STICK")); !os.IsNotExist(err) {
		t.Error("link of removed device still present")
	}
	if _, err := os.Lstat(filepath.Join(f.linkdir, "STICK_2")); err != nil {
		t.Errorf("link of remaining device removed: %v", err)
	}
}

func TestCore_PartitionLinkRemoval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-P", "/dev/sdh")
	f.prober.addVolume("usb-P-part1", "/dev/sdh1", "ext4", "a")
	f.prober.addVolume("usb-P-part2", "/dev/sdh2", "ext4", "b")
	for _, l := range []string{"usb-P", "usb-P-part1", "usb-P-part2"} {
		f.core.HandleNewDevice(ctx, byID+l)
	}

	f.core.HandleRemovedDevice(ctx, byID+"usb-P-part1")

	d := f.registry.DeviceByDevlink(byID + "usb-P")
	if _, ok := d.Volume(1); ok {
		t.Error("volume 1 still registered")
	}
	if v, _ := d.Volume(2); v == nil || v.State() != device.VolumeMounted {
		t.Error("volume 2 affected by removal of volume 1")
	}

	f.core.HandleRemovedDevice(ctx, byID+"usb-Nothing")
	if f.registry.Len() != 1 {
		t.Errorf("registry has %d devices, want 1", f.registry.Len())
	}
}

func TestCore_ShutdownDrainsAndSweeps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-S", "/dev/sdi")
	f.prober.addVolume("usb-S-part1", "/dev/sdi1", "ext4", "s")
	f.core.HandleNewDevice(ctx, byID+"usb-S")
	f.core.HandleNewDevice(ctx, byID+"usb-S-part1")

	// Residue of a previous run that the registry does not know.
	residual := filepath.Join(f.workdir, "77", "3")
	if err := os.MkdirAll(residual, 0o755); err != nil {
		t.Fatal(err)
	}

	f.core.Shutdown(ctx)

	if f.registry.Len() != 0 {
		t.Errorf("registry has %d devices after Shutdown", f.registry.Len())
	}
	if exists(f.workdir) {
		t.Error("working directory survived Shutdown")
	}
	assertEvents(t, f.notifier.all(), []string{
		"device-added:usb-S", "volume-added:1", "device-removing:usb-S", "device-removed:usb-S",
	})
}

func TestCore_StartSweepsResidue(t *testing.T) {
	f := newFixture(t)
	residual := filepath.Join(f.workdir, "5", "1")
	if err := os.MkdirAll(residual, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(f.linkdir, "OLD")
	if err := os.Symlink(residual, stale); err != nil {
		t.Fatal(err)
	}

	if err := f.core.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if exists(filepath.Join(f.workdir, "5")) {
		t.Error("residual directory survived Start")
	}
	if !exists(f.workdir) {
		t.Error("working directory missing after Start")
	}
	if _, err := os.Lstat(stale); !os.IsNotExist(err) {
		t.Error("stale label link survived Start")
	}
}

type fakeResolver struct{ root, volume string }

func (r fakeResolver) DevlinksForMountpoint(string) (string, string, error) {
	return r.root, r.volume, nil
}

func TestCore_WatchModeAdoptsForeignMount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.prober.addDevice("usb-W", "/dev/sdj")
	f.prober.addVolume("usb-W-part1", "/dev/sdj1", "ext4", "w")
	f.registry.SetMountpointResolver(fakeResolver{root: byID + "usb-W", volume: byID + "usb-W-part1"})

	media := t.TempDir()
	mp := filepath.Join(media, "w")
	if err := os.Mkdir(mp, 0o755); err != nil {
		t.Fatal(err)
	}

	f.core.HandleNewMountpoint(ctx, mp)

	d := f.registry.DeviceByDevlink(byID + "usb-W")
	if d == nil || d.State() != device.StateOK {
		t.Fatalf("device = %+v, want accepted", d)
	}
	if d.WorkingDirectory().State() != autodir.External {
		t.Errorf("working directory state = %v, want external", d.WorkingDirectory().State())
	}
	v, _ := d.Volume(1)
	if v.State() != device.VolumeMounted || v.Mountpoint().Path() != mp {
		t.Errorf("volume state=%v mountpoint=%q, want adopted at %q", v.State(), v.Mountpoint().Path(), mp)
	}
	if len(f.runner.callsOf("/bin/mount")) != 0 {
		t.Error("mount tool invoked for a foreign mount")
	}
	assertEvents(t, f.notifier.all(), []string{"device-added:usb-W", "volume-added:1"})

	f.core.HandleRemovedMountpoint(ctx, mp)

	if len(f.runner.callsOf("/bin/umount")) != 0 {
		t.Error("umount invoked for a foreign mount")
	}
	if !exists(mp) || !exists(media) {
		t.Error("foreign directories removed")
	}
	if f.registry.Len() != 0 {
		t.Errorf("registry has %d devices, want 0", f.registry.Len())
	}
	assertEvents(t, f.notifier.all(), []string{
		"device-added:usb-W", "volume-added:1", "device-removing:usb-W", "device-removed:usb-W",
	})
}

func TestCore_VolumeFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.core.SetVolumeFilter(func(_ *device.Device, v *device.Volume) bool { return v.FSType != "swap" })
	f.prober.addDevice("usb-F", "/dev/sdk")
	f.prober.addVolume("usb-F-part1", "/dev/sdk1", "swap", "")
	f.core.HandleNewDevice(ctx, byID+"usb-F")
	f.core.HandleNewDevice(ctx, byID+"usb-F-part1")

	v, _ := f.registry.DeviceByDevlink(byID + "usb-F").Volume(1)
	if v.State() != device.VolumeRejected {
		t.Errorf("volume state = %v, want %v", v.State(), device.VolumeRejected)
	}
}
