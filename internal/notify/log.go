package notify

import "context"

// LogSink writes one structured line per event.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a LogSink. A nil logger discards.
func NewLogSink(logger Logger) *LogSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, e Event) error {
	args := []any{
		"event", string(e.Kind),
		"device_id", e.Device.ID,
		"device", e.DeviceName(),
		"devlink", e.Device.Devlink,
	}
	if e.Volume != nil {
		args = append(args,
			"volume", e.Volume.Index,
			"fstype", e.Volume.FSType,
			"label", e.Volume.Label,
			"mountpoint", e.Volume.Mountpoint,
		)
	}
	s.logger.Info("lifecycle event", args...)
	return nil
}
