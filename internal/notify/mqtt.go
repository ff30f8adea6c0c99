package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/infrastructure/mqtt"
	"github.com/nerrad567/automountd/internal/journal"
)

// Publisher is the subset of *mqtt.Client used by MQTTSink.
type Publisher interface {
	PublishJSON(topic string, v any) error
	IsConnected() bool
}

// MQTTPayload is the JSON body published for every event.
type MQTTPayload struct {
	Event     string             `json:"event"`
	Timestamp time.Time          `json:"timestamp"`
	Device    device.DeviceView  `json:"device"`
	Volume    *device.VolumeView `json:"volume,omitempty"`
}

// MQTTSink publishes events to the broker.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTTSink creates a sink publishing under topics.
func NewMQTTSink(pub Publisher, topics mqtt.Topics) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Send publishes e. While the broker is unreachable the event is dropped
// with mqtt.ErrNotConnected; nothing is queued.
func (s *MQTTSink) Send(_ context.Context, e Event) error {
	if !s.pub.IsConnected() {
		return mqtt.ErrNotConnected
	}
	topic, err := s.topic(e)
	if err != nil {
		return err
	}
	payload := MQTTPayload{
		Event:     string(e.Kind),
		Timestamp: e.Time,
		Device:    e.Device,
		Volume:    e.Volume,
	}
	return s.pub.PublishJSON(topic, payload)
}

func (s *MQTTSink) topic(e Event) (string, error) {
	id := uint16(e.Device.ID)
	switch e.Kind {
	case journal.DeviceAdded:
		return s.topics.DeviceAdded(id), nil
	case journal.DeviceRemoving:
		return s.topics.DeviceRemoving(id), nil
	case journal.DeviceRemoved:
		return s.topics.DeviceRemoved(id), nil
	case journal.VolumeAdded:
		if e.Volume == nil {
			return "", fmt.Errorf("%w: volume event without volume", mqtt.ErrInvalidTopic)
		}
		return s.topics.VolumeAdded(id, e.Volume.Index), nil
	default:
		return "", fmt.Errorf("%w: unknown event %q", mqtt.ErrInvalidTopic, e.Kind)
	}
}
