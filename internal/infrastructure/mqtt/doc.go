// Package mqtt provides the broker adapter for the Pay-to-Power core.
//
// This package manages:
//   - The single authenticated connection to the MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Connection health monitoring
//
// # Architecture
//
// The core talks to physical devices exclusively over this connection.
// Devices connect and disconnect unpredictably; the adapter's only job is
// to keep the pipe open and reassert subscriptions after every reconnect.
// Delivery guarantees live in the outbox, not here: a failed publish is
// logged by the caller and retried on the device's next online event.
//
//	Pay-to-Power Core ↔ MQTT Broker ↔ Devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device acknowledgments
//	err = client.Subscribe(mqtt.Topics{}.AllAcknowledge(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.Wifi("Ab3")
//	client.Publish(topic, payload, 1, false)
package mqtt
