package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/automountd/internal/journal"
)

// handleListEvents returns a page of the event journal, most recent first.
//
// Query parameters:
//   - event: device_added, device_removing, device_removed or volume_added
//   - device_id: registry ID (IDs are reused across restarts)
//   - since: RFC 3339 timestamp, inclusive
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "event journal is disabled")
		return
	}

	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal events failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseEventFilter(q url.Values) (journal.Filter, error) {
	var f journal.Filter

	if kind := q.Get("event"); kind != "" {
		switch k := journal.Kind(kind); k {
		case journal.DeviceAdded, journal.DeviceRemoving, journal.DeviceRemoved, journal.VolumeAdded:
			f.Kind = k
		default:
			return f, fmt.Errorf("unknown event %q", kind)
		}
	}

	if raw := q.Get("device_id"); raw != "" {
		id, err := parseDeviceID(raw)
		if err != nil {
			return f, fmt.Errorf("invalid device_id")
		}
		f.DeviceID = int(id)
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("invalid since timestamp")
		}
		f.Since = since
	}

	var err error
	if f.Limit, err = parseNonNegative(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseNonNegative(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseNonNegative(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}
