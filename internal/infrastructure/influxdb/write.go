package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEvents   = "automount_events"
	MeasurementRegistry = "automount_registry"
)

// LifecycleEvent is one device or volume notification.
type LifecycleEvent struct {
	// Event is the kind, e.g. "device_added" or "volume_added".
	Event    string
	DeviceID uint16
	// Device is the stable display name (device link basename).
	Device string
	// Volume is the volume index; nil for device events.
	Volume *int
	FSType string
	Time   time.Time
}

// WriteLifecycleEvent records e in the automount_events measurement.
//
// Tags are low-cardinality (event, device, fstype); the device ID and volume
// index are fields because IDs are reused across runs.
func (c *Client) WriteLifecycleEvent(e LifecycleEvent) {
	tags := map[string]string{"event": e.Event}
	if e.Device != "" {
		tags["device"] = e.Device
	}
	if e.FSType != "" {
		tags["fstype"] = e.FSType
	}

	fields := map[string]any{
		"device_id": int64(e.DeviceID),
		"count":     int64(1),
	}
	if e.Volume != nil {
		fields["volume_index"] = int64(*e.Volume)
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementEvents, tags, fields, ts)
}

// WriteRegistryStats records current device and per-state volume counts.
func (c *Client) WriteRegistryStats(devices int, volumes map[string]int) {
	fields := map[string]any{"devices": int64(devices)}
	for state, n := range volumes {
		fields["volumes_"+state] = int64(n)
	}
	c.WritePointWithTime(MeasurementRegistry, nil, fields, time.Now())
}

// WritePointWithTime writes a point with full control over tags, fields and
// timestamp. Dropped silently when disconnected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
