package automount

import (
	"context"

	"github.com/nerrad567/automountd/internal/device"
)

// Notifier receives lifecycle notifications. Calls are one-way: a sink that
// fails handles its own errors.
type Notifier interface {
	DeviceAdded(ctx context.Context, d device.DeviceView)
	DeviceWillBeRemoved(ctx context.Context, d device.DeviceView)
	DeviceRemoved(ctx context.Context, d device.DeviceView)
	VolumeAdded(ctx context.Context, v device.VolumeView, d device.DeviceView)
}

// Metrics receives counters and gauges. Implementations must accept calls
// on a nil receiver or be replaced by NoopMetrics.
type Metrics interface {
	MountResult(ok bool)
	UnmountResult(ok bool)
	ObserveRegistry(stats device.Stats)
}

// Logger defines the logging interface for the automounter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) DeviceAdded(context.Context, device.DeviceView)                    {}
func (noopNotifier) DeviceWillBeRemoved(context.Context, device.DeviceView)            {}
func (noopNotifier) DeviceRemoved(context.Context, device.DeviceView)                  {}
func (noopNotifier) VolumeAdded(context.Context, device.VolumeView, device.DeviceView) {}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) MountResult(bool)             {}
func (NoopMetrics) UnmountResult(bool)           {}
func (NoopMetrics) ObserveRegistry(device.Stats) {}
