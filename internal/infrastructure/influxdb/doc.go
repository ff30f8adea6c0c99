// Package influxdb writes automount telemetry to InfluxDB v2.
//
// Two measurements are written:
//
//	automount_events    one point per lifecycle notification
//	                    tags: event, device, fstype
//	                    fields: device_id, volume_index, count
//	automount_registry  device count and volume counts per state
//
// Writes are batched by the client library and never block the event loop.
// When InfluxDB is unreachable at startup the daemon runs without it.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
package influxdb
