package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/automountd/internal/automount"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Devices       int               `json:"devices"`
	Components    map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok", "degraded" when an optional sink is unhealthy,
// or 503 "stopped" once the event loop has exited.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	views, err := s.devices.Snapshot(r.Context())
	if err != nil {
		resp.Status = "stopped"
		if !errors.Is(err, automount.ErrLoopStopped) {
			resp.Status = "unavailable"
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Devices = len(views)

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
