package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/automountd/internal/autodir"
	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/process"
)

// fakeProber resolves links from a map and serves canned probe results.
type fakeProber struct {
	links   map[string]string
	devices map[string]identity.DeviceInfo
	volumes map[string]identity.VolumeInfo

	deviceProbes int
	volumeProbes int
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		links:   make(map[string]string),
		devices: make(map[string]identity.DeviceInfo),
		volumes: make(map[string]identity.VolumeInfo),
	}
}

// addDevice registers a whole device link and its hardware identity.
func (p *fakeProber) addDevice(devlink, devname, uuid string) {
	p.links[devlink] = devname
	p.devices[devname] = identity.DeviceInfo{UUID: uuid, UUIDSource: identity.SourcePartitionTable, USBPort: "2-1"}
}

// addVolume registers a partition link with a filesystem.
func (p *fakeProber) addVolume(devlink, devname, fstype, label string) {
	p.links[devlink] = devname
	n, _ := identity.ParseVolumeNumber(devname)
	p.volumes[devname] = identity.VolumeInfo{
		Index:      n,
		UUID:       "uuid-" + devname,
		UUIDSource: identity.SourceFilesystem,
		FSType:     fstype,
		Label:      label,
	}
}

func (p *fakeProber) ResolveDevlink(devlink string) (string, error) {
	if devname, ok := p.links[devlink]; ok {
		return devname, nil
	}
	return "", fmt.Errorf("lstat %s: %w", devlink, os.ErrNotExist)
}

func (p *fakeProber) DeviceInformation(_ context.Context, devname string) (identity.DeviceInfo, error) {
	p.deviceProbes++
	if info, ok := p.devices[devname]; ok {
		return info, nil
	}
	return identity.DeviceInfo{}, errors.New("probe tool failed")
}

func (p *fakeProber) VolumeInformation(_ context.Context, devname string) (identity.VolumeInfo, error) {
	p.volumeProbes++
	if info, ok := p.volumes[devname]; ok {
		return info, nil
	}
	return identity.VolumeInfo{}, identity.ErrNoFilesystem
}

// fakeRunner succeeds every tool call and records the command lines.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) Run(_ context.Context, cmd process.Command, args ...string) (process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(cmd.Argv(args...), " "))
	return process.Result{}, nil
}

// recordingLogger keeps every message by level.
type recordingLogger struct {
	infos  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...any)       {}
func (l *recordingLogger) Warn(string, ...any)        {}
func (l *recordingLogger) Info(msg string, _ ...any)  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) count(msg string) (n int) {
	for _, m := range l.infos {
		if m == msg {
			n++
		}
	}
	return n
}

func newTestRegistry() (*Registry, *fakeProber, *fakeRunner, *recordingLogger) {
	prober := newFakeProber()
	runner := &fakeRunner{}
	env := autodir.NewEnv(runner, process.DefaultTools())
	env.Sleep = func(time.Duration) {}
	log := &recordingLogger{}

	reg := NewRegistry(prober, env)
	reg.SetLogger(log)
	return reg, prober, runner, log
}
