// Package metrics exposes automountd counters and gauges to Prometheus.
//
// Metrics are optional. A nil *Metrics is valid and records nothing, so
// components can be wired unconditionally:
//
//	var m *metrics.Metrics            // disabled
//	m = metrics.New(prometheus.NewRegistry()) // enabled
//	core.SetMetrics(m)
//	runner.SetObserver(m.ToolInvocation)
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/automountd/internal/device"
)

const namespace = "automountd"

// Result label values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics is the Prometheus implementation of automount.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	devices   prometheus.Gauge
	volumes   *prometheus.GaugeVec
	mounts    *prometheus.CounterVec
	unmounts  *prometheus.CounterVec
	toolCalls *prometheus.CounterVec
}

// New registers the automountd metrics on reg. A nil reg disables metrics
// and returns nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		devices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of registered devices",
		}),
		volumes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volumes",
			Help:      "Number of registered volumes by state",
		}, []string{"state"}),
		mounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mounts_total",
			Help:      "Mount attempts by result",
		}, []string{"result"}),
		unmounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmounts_total",
			Help:      "Unmounts of managed volumes by result",
		}, []string{"result"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "External tool invocations by tool and result",
		}, []string{"tool", "result"}),
	}

	// Expose every state from the start so dashboards see zeros.
	for _, s := range device.AllVolumeStates {
		m.volumes.WithLabelValues(s.String())
	}
	for _, r := range []string{resultSuccess, resultFailure} {
		m.mounts.WithLabelValues(r)
		m.unmounts.WithLabelValues(r)
	}
	return m
}

// MountResult counts a mount attempt.
func (m *Metrics) MountResult(ok bool) {
	if m == nil {
		return
	}
	m.mounts.WithLabelValues(result(ok)).Inc()
}

// UnmountResult counts an unmount of a managed volume.
func (m *Metrics) UnmountResult(ok bool) {
	if m == nil {
		return
	}
	m.unmounts.WithLabelValues(result(ok)).Inc()
}

// ObserveRegistry sets the device and volume gauges.
func (m *Metrics) ObserveRegistry(stats device.Stats) {
	if m == nil {
		return
	}
	m.devices.Set(float64(stats.Devices))
	for _, s := range device.AllVolumeStates {
		m.volumes.WithLabelValues(s.String()).Set(float64(stats.VolumeStates[s]))
	}
}

// ToolInvocation counts one external tool run; it matches the process
// runner's observer signature.
func (m *Metrics) ToolInvocation(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, result(err == nil)).Inc()
}

// Handler serves the registry in the Prometheus exposition format. A nil
// *Metrics serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultFailure
}
