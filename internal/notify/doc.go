// Package notify delivers device and volume lifecycle notifications to the
// configured sinks.
//
// Multi implements automount.Notifier. It turns each callback into an Event
// and hands it to every Sink in order. A failing sink is logged and skipped;
// the automounter never sees the error and never waits on a retry.
//
// Sinks:
//   - LogSink: structured log line, always present
//   - MQTTSink: JSON payload on <prefix>/device/<id>/...
//   - JournalSink: row in the SQLite event journal
//   - InfluxSink: point in the automount_events measurement
package notify
