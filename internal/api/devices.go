package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/automountd/internal/automount"
	"github.com/nerrad567/automountd/internal/device"
)

// handleListDevices returns the registry snapshot.
//
// Query parameters:
//   - state: only devices in this state (synthetic, probed, broken, ok, rejected)
//   - mounted: "true" keeps devices with at least one mounted volume
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	views, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	mountedOnly := r.URL.Query().Get("mounted") == "true"

	devices := make([]device.DeviceView, 0, len(views))
	for _, v := range views {
		if state != "" && v.State != state {
			continue
		}
		if mountedOnly && !hasMountedVolume(v) {
			continue
		}
		devices = append(devices, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by registry ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid device ID")
		return
	}

	views, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	for _, v := range views {
		if v.ID == id {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeNotFound(w, "device not found")
}

// snapshot fetches the registry views, writing the error response on failure.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) ([]device.DeviceView, bool) {
	views, err := s.devices.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, automount.ErrLoopStopped) {
			writeUnavailable(w, "automounter is shutting down")
			return nil, false
		}
		s.logger.Warn("registry snapshot failed", "error", err)
		writeUnavailable(w, "registry snapshot unavailable")
		return nil, false
	}
	return views, true
}

func parseDeviceID(raw string) (device.ID, error) {
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > uint64(device.MaxID) {
		return 0, strconv.ErrRange
	}
	return device.ID(n), nil
}

func hasMountedVolume(v device.DeviceView) bool {
	for _, vol := range v.Volumes {
		if vol.State == device.VolumeMounted.String() {
			return true
		}
	}
	return false
}
