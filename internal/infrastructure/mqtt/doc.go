// Package mqtt provides the MQTT session used by the ESERA bridge and the
// virtual thermostat.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained status topic: online on every connect, offline as last will
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Connection health monitoring
//
// # Shutdown
//
// Close drops the broker socket instead of sending DISCONNECT. The broker
// then publishes the registered will, which is the only way the status
// topic ever becomes offline. A crashed or killed process ends up in the
// same state as a graceful shutdown.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
//	    Topic:   "ESERA/1/status",
//	    Online:  "online",
//	    Offline: "offline",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("ESERA/1/+/set/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("ESERA/1/OWD17/temp", []byte("21.94"), 1, true)
package mqtt
