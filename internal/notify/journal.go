package notify

import (
	"context"

	"github.com/nerrad567/automountd/internal/journal"
)

// JournalSink appends events to the event journal.
type JournalSink struct {
	repo journal.Repository
}

// NewJournalSink creates a sink writing to repo.
func NewJournalSink(repo journal.Repository) *JournalSink {
	return &JournalSink{repo: repo}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Send(ctx context.Context, e Event) error {
	return s.repo.Append(ctx, journalEvent(e))
}

func journalEvent(e Event) *journal.Event {
	entry := &journal.Event{
		Kind:      e.Kind,
		DeviceID:  int(e.Device.ID),
		Devlink:   e.Device.Devlink,
		CreatedAt: e.Time,
		Detail:    map[string]any{"state": e.Device.State},
	}
	if e.Device.Devname != "" {
		entry.Detail["devname"] = e.Device.Devname
	}
	if e.Device.UUID != "" && !e.Device.UUIDSynthetic {
		entry.Detail["device_uuid"] = e.Device.UUID
	}
	if e.Device.USBPort != "" {
		entry.Detail["usb_port"] = e.Device.USBPort
	}

	if v := e.Volume; v != nil {
		index := v.Index
		entry.Volume = &index
		entry.Label = v.Label
		entry.Mountpoint = v.Mountpoint
		// Synthetic UUIDs are per-process and must not be stored.
		if !v.UUIDSynthetic {
			entry.VolumeUUID = v.UUID
		}
		entry.Detail["fstype"] = v.FSType
		entry.Detail["volume_state"] = v.State
		if v.Symlink != "" {
			entry.Detail["symlink"] = v.Symlink
		}
	} else if e.Kind != journal.DeviceAdded {
		entry.Detail["volumes"] = len(e.Device.Volumes)
	}
	return entry
}
