package notify

import (
	"context"
	"path/filepath"
	"time"

	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/journal"
)

// Event is one lifecycle notification as seen by a Sink.
type Event struct {
	Kind   journal.Kind
	Device device.DeviceView
	// Volume is set for VolumeAdded only.
	Volume *device.VolumeView
	Time   time.Time
}

// DeviceName is the stable display name of the event's device, falling back
// to the devlink basename before the device has been probed.
func (e Event) DeviceName() string {
	if e.Device.DisplayName != "" {
		return e.Device.DisplayName
	}
	return filepath.Base(e.Device.Devlink)
}

// Sink receives events from Multi.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Multi fans notifications out to a list of sinks.
type Multi struct {
	sinks  []Sink
	logger Logger
	now    func() time.Time
}

// NewMulti creates a fan-out over sinks. Nil sinks are skipped so optional
// sinks can be passed unconditionally.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{logger: noopLogger{}, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// SetLogger sets the logger used for sink failures.
func (m *Multi) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Sinks returns the names of the configured sinks.
func (m *Multi) Sinks() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (m *Multi) DeviceAdded(ctx context.Context, d device.DeviceView) {
	m.dispatch(ctx, Event{Kind: journal.DeviceAdded, Device: d})
}

func (m *Multi) DeviceWillBeRemoved(ctx context.Context, d device.DeviceView) {
	m.dispatch(ctx, Event{Kind: journal.DeviceRemoving, Device: d})
}

func (m *Multi) DeviceRemoved(ctx context.Context, d device.DeviceView) {
	m.dispatch(ctx, Event{Kind: journal.DeviceRemoved, Device: d})
}

func (m *Multi) VolumeAdded(ctx context.Context, v device.VolumeView, d device.DeviceView) {
	m.dispatch(ctx, Event{Kind: journal.VolumeAdded, Device: d, Volume: &v})
}

func (m *Multi) dispatch(ctx context.Context, e Event) {
	e.Time = m.now().UTC()
	for _, s := range m.sinks {
		if err := s.Send(ctx, e); err != nil {
			m.logger.Warn("notification sink failed",
				"sink", s.Name(),
				"event", string(e.Kind),
				"device_id", e.Device.ID,
				"error", err,
			)
		}
	}
}
