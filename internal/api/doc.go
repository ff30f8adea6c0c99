// Package api implements the read-only HTTP status API for automountd.
//
// Routes:
//
//	GET /api/v1/health         daemon and sink health
//	GET /api/v1/devices        registry snapshot
//	GET /api/v1/devices/{id}   one device with its volumes
//	GET /api/v1/events         event journal page (when the journal is enabled)
//	GET /metrics               Prometheus exposition (when metrics are enabled)
//
// Device data comes from the event loop's Snapshot query, never from the
// registry directly, so handlers cannot race the automounter.
package api
