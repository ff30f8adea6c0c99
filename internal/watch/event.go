package watch

// EventType identifies what happened to a path.
type EventType int

const (
	DeviceAdded EventType = iota
	DeviceRemoved
	MountpointAdded
	MountpointRemoved
	Shutdown
)

func (t EventType) String() string {
	switch t {
	case DeviceAdded:
		return "device_added"
	case DeviceRemoved:
		return "device_removed"
	case MountpointAdded:
		return "mountpoint_added"
	case MountpointRemoved:
		return "mountpoint_removed"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is a single observation.
type Event struct {
	Type EventType
	Path string
}
