// Package osdev probes block devices through the configured external tools.
package osdev

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nerrad567/automountd/internal/identity"
	"github.com/nerrad567/automountd/internal/process"
)

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, cmd process.Command, args ...string) (process.Result, error)
}

// Prober implements device.Prober on top of udevadm/blkid style tools.
type Prober struct {
	runner Runner
	tools  process.Tools

	// resolve follows symlinks; replaced in tests.
	resolve func(string) (string, error)
}

// New creates a Prober.
func New(runner Runner, tools process.Tools) *Prober {
	return &Prober{
		runner:  runner,
		tools:   tools,
		resolve: filepath.EvalSymlinks,
	}
}

// ResolveDevlink returns the concrete device a link points at.
func (p *Prober) ResolveDevlink(devlink string) (string, error) {
	devname, err := p.resolve(devlink)
	if err != nil {
		return "", err
	}
	return devname, nil
}

// DeviceInformation runs the device probe tool on devname.
func (p *Prober) DeviceInformation(ctx context.Context, devname string) (identity.DeviceInfo, error) {
	res, err := p.runner.Run(ctx, p.tools.ProbeDevice, devname)
	if err != nil {
		return identity.DeviceInfo{}, fmt.Errorf("probing device %s: %w", devname, err)
	}
	return identity.ParseDeviceInfo(devname, res.Stdout), nil
}

// VolumeInformation runs the volume probe tool on devname.
func (p *Prober) VolumeInformation(ctx context.Context, devname string) (identity.VolumeInfo, error) {
	res, err := p.runner.Run(ctx, p.tools.ProbeVolume, devname)
	if err != nil {
		// blkid exits 2 when it finds nothing to report.
		return identity.VolumeInfo{}, fmt.Errorf("probing volume %s: %w", devname, err)
	}
	return identity.ParseVolumeInfo(devname, res.Stdout)
}
