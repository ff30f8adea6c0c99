package device

import (
	"path/filepath"

	"github.com/nerrad567/automountd/internal/identity"
)

// DeviceView is an immutable snapshot of a Device for notifications and the API.
type DeviceView struct {
	ID               ID           `json:"id"`
	Devlink          string       `json:"devlink"`
	Devname          string       `json:"devname,omitempty"`
	DisplayName      string       `json:"display_name,omitempty"`
	Description      string       `json:"description,omitempty"`
	UUID             string       `json:"uuid,omitempty"`
	UUIDSynthetic    bool         `json:"uuid_synthetic,omitempty"`
	USBPort          string       `json:"usb_port,omitempty"`
	WorkingDirectory string       `json:"working_directory,omitempty"`
	State            string       `json:"state"`
	Volumes          []VolumeView `json:"volumes"`
}

// VolumeView is an immutable snapshot of a Volume.
type VolumeView struct {
	DeviceID       ID     `json:"device_id"`
	Index          int    `json:"index"`
	Devname        string `json:"devname"`
	Devlink        string `json:"devlink,omitempty"`
	UUID           string `json:"uuid,omitempty"`
	UUIDSynthetic  bool   `json:"uuid_synthetic,omitempty"`
	Label          string `json:"label,omitempty"`
	FSType         string `json:"fstype"`
	Mountpoint     string `json:"mountpoint,omitempty"`
	MountpointName string `json:"mountpoint_name,omitempty"`
	Symlink        string `json:"symlink,omitempty"`
	State          string `json:"state"`
}

// View snapshots the device and its volumes.
func (d *Device) View() DeviceView {
	view := DeviceView{
		ID:            d.ID,
		Devlink:       d.Devlink,
		Devname:       d.Devname,
		DisplayName:   d.DisplayName,
		Description:   d.Description,
		UUID:          d.UUID,
		UUIDSynthetic: identity.IsSynthetic(d.UUID),
		USBPort:       d.USBPort,
		State:         d.state.String(),
		Volumes:       make([]VolumeView, 0, len(d.volumes)),
	}
	if d.workdir != nil {
		view.WorkingDirectory = d.workdir.Path()
	}
	for _, v := range d.Volumes() {
		view.Volumes = append(view.Volumes, v.View())
	}
	return view
}

// View snapshots the volume.
func (v *Volume) View() VolumeView {
	view := VolumeView{
		DeviceID:      v.DeviceID,
		Index:         v.Index,
		Devname:       v.Devname,
		Devlink:       v.Devlink,
		UUID:          v.UUID,
		UUIDSynthetic: identity.IsSynthetic(v.UUID),
		Label:         v.Label,
		FSType:        v.FSType,
		Symlink:       v.Symlink,
		State:         v.state.String(),
	}
	if v.mountpoint != nil && v.mountpoint.Path() != "" {
		view.Mountpoint = v.mountpoint.Path()
		view.MountpointName = filepath.Base(view.Mountpoint)
	}
	return view
}
