package notify

import (
	"context"

	"github.com/nerrad567/automountd/internal/infrastructure/influxdb"
)

// PointWriter is the subset of *influxdb.Client used by InfluxSink.
type PointWriter interface {
	WriteLifecycleEvent(e influxdb.LifecycleEvent)
}

// InfluxSink records one point per event. Writes are batched and
// asynchronous, so Send never fails; write errors surface through the
// client's error callback.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Send(_ context.Context, e Event) error {
	point := influxdb.LifecycleEvent{
		Event:    string(e.Kind),
		DeviceID: uint16(e.Device.ID),
		Device:   e.DeviceName(),
		Time:     e.Time,
	}
	if e.Volume != nil {
		index := e.Volume.Index
		point.Volume = &index
		point.FSType = e.Volume.FSType
	}
	s.w.WriteLifecycleEvent(point)
	return nil
}
