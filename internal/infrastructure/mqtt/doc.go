// Package mqtt provides the MQTT connectivity underneath the driver bus.
//
// This package manages:
//   - Connection to the gateway's broker (Mosquitto)
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for crash detection
//   - Connection health monitoring
//
// # Architecture
//
// The gateway runs a broker that carries the device-management bus. Each
// bus participant has an inbox topic per name it owns; name ownership and
// connection presence are kept as retained messages.
//
//	Driver SDK ↔ MQTT Broker ↔ Device-management daemon
//
// Auto-reconnect is disabled. A lost connection is reported through the
// OnDisconnect callback; the driver process treats it as fatal.
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not local (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	err = client.Subscribe(topics.Inbox("iot.driver.idled"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
