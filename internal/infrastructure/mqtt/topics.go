package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "automountd"

// Topics builds automountd topic names under a common prefix:
//
//	<prefix>/status
//	<prefix>/device/<id>/added
//	<prefix>/device/<id>/removing
//	<prefix>/device/<id>/removed
//	<prefix>/device/<id>/volume/<index>/added
type Topics struct {
	prefix string
}

// NewTopics returns builders under prefix; surrounding slashes are dropped.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status is the retained daemon status topic (online/offline, Last Will).
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// DeviceAdded is published once a device is accepted.
func (t Topics) DeviceAdded(id uint16) string {
	return t.device(id) + "/added"
}

// DeviceRemoving is published before a device's volumes are unmounted.
func (t Topics) DeviceRemoving(id uint16) string {
	return t.device(id) + "/removing"
}

// DeviceRemoved is published after a device's volumes are unmounted.
func (t Topics) DeviceRemoved(id uint16) string {
	return t.device(id) + "/removed"
}

// VolumeAdded is published once a volume is mounted.
//
// The whole-device volume (index -1) uses "disk".
func (t Topics) VolumeAdded(id uint16, index int) string {
	name := fmt.Sprint(index)
	if index < 0 {
		name = "disk"
	}
	return fmt.Sprintf("%s/volume/%s/added", t.device(id), name)
}

// AllEvents is the wildcard matching every device event.
func (t Topics) AllEvents() string {
	return t.prefix + "/device/#"
}

func (t Topics) device(id uint16) string {
	return fmt.Sprintf("%s/device/%d", t.prefix, id)
}
