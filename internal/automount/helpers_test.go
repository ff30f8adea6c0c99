package automount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/process"
)

const byID = "/dev/disk/by-id/"

type fakeProber struct {
	links   map[string]string
	devices map[string]identity.DeviceInfo
	volumes map[string]identity.VolumeInfo
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		links:   make(map[string]string),
		devices: make(map[string]identity.DeviceInfo),
		volumes: make(map[string]identity.VolumeInfo),
	}
}

func (p *fakeProber) addDevice(name, devname string) {
	p.links[byID+name] = devname
	p.devices[devname] = identity.DeviceInfo{UUID: "dev-" + name, UUIDSource: identity.SourcePartitionTable}
}

func (p *fakeProber) addVolume(name, devname, fstype, label string) {
	p.links[byID+name] = devname
	n, _ := identity.ParseVolumeNumber(devname)
	p.volumes[devname] = identity.VolumeInfo{Index: n, UUID: "fs-" + devname, FSType: fstype, Label: label}
}

func (p *fakeProber) ResolveDevlink(devlink string) (string, error) {
	if d, ok := p.links[devlink]; ok {
		return d, nil
	}
	return "", os.ErrNotExist
}

func (p *fakeProber) DeviceInformation(_ context.Context, devname string) (identity.DeviceInfo, error) {
	if info, ok := p.devices[devname]; ok {
		return info, nil
	}
	return identity.DeviceInfo{}, errors.New("no such device")
}

func (p *fakeProber) VolumeInformation(_ context.Context, devname string) (identity.VolumeInfo, error) {
	if info, ok := p.volumes[devname]; ok {
		return info, nil
	}
	return identity.VolumeInfo{}, identity.ErrNoFilesystem
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *fakeRunner) Run(_ context.Context, cmd process.Command, args ...string) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(cmd.Argv(args...), " "))
	if r.fail[cmd.Name] {
		return process.Result{ExitCode: 32}, process.ErrNonZeroExit
	}
	return process.Result{}, nil
}

func (r *fakeRunner) callsOf(binary string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if strings.HasPrefix(c, binary+" ") {
			out = append(out, c)
		}
	}
	return out
}

// recordingNotifier captures notifications as "kind:subject" strings.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, s)
}

func (n *recordingNotifier) DeviceAdded(_ context.Context, d device.DeviceView) {
	n.add("device-added:" + d.DisplayName)
}

func (n *recordingNotifier) DeviceWillBeRemoved(_ context.Context, d device.DeviceView) {
	n.add("device-removing:" + d.DisplayName)
}

func (n *recordingNotifier) DeviceRemoved(_ context.Context, d device.DeviceView) {
	n.add("device-removed:" + d.DisplayName)
}

func (n *recordingNotifier) VolumeAdded(_ context.Context, v device.VolumeView, _ device.DeviceView) {
	n.add(fmt.Sprintf("volume-added:%d", v.Index))
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type countingMetrics struct {
	mounts, mountFailures, unmounts int
	last                            device.Stats
}

func (m *countingMetrics) MountResult(ok bool) {
	if ok {
		m.mounts++
	} else {
		m.mountFailures++
	}
}
func (m *countingMetrics) UnmountResult(bool)             { m.unmounts++ }
func (m *countingMetrics) ObserveRegistry(s device.Stats) { m.last = s }

type fixture struct {
	core     *Core
	registry *device.Registry
	prober   *fakeProber
	runner   *fakeRunner
	notifier *recordingNotifier
	metrics  *countingMetrics
	workdir  string
	linkdir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	f := &fixture{
		prober:   newFakeProber(),
		runner:   &fakeRunner{fail: make(map[string]bool)},
		notifier: &recordingNotifier{},
		metrics:  &countingMetrics{},
		workdir:  filepath.Join(root, "work"),
		linkdir:  filepath.Join(root, "links"),
	}

	env := autodir.NewEnv(f.runner, process.DefaultTools())
	env.Sleep = func(time.Duration) {}
	env.Detach = func(string) error { return nil }

	f.registry = device.NewRegistry(f.prober, env)
	f.core = NewCore(Config{
		WorkingDirectory: f.workdir,
		SymlinkDirectory: f.linkdir,
		DevicePrefixes:   DefaultDevicePrefixes,
	}, f.registry, env)
	f.core.SetNotifier(f.notifier)
	f.core.SetMetrics(f.metrics)

	if err := f.core.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return f
}

func assertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("notifications = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
