// Package mqtt publishes automountd lifecycle notifications to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Validated publishing with QoS guarantees
//   - Online/offline status on <prefix>/status, with a Last Will so
//     subscribers notice a crashed daemon
//   - Topic naming for device and volume events
//
// # Architecture
//
//	automount.Core -> notify.MQTTSink -> mqtt.Client -> broker -> consumers
//
// Event messages are not retained. Status messages are.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().DeviceAdded(3)
//	err = client.PublishJSON(topic, view)
package mqtt
