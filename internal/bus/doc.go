// Package bus implements the named-service message bus drivers use to talk
// to the gateway's device-management daemon.
//
// The bus runs over MQTT. Every connection gets a unique name and an inbox
// topic; well-known names (for example "iot.dmp.dimu") are claimed by
// subscribing to the name's inbox and publishing a retained ownership
// record. A connection publishes a retained presence record at dial time
// and registers a Last Will that clears it, so a crashed owner's names read
// as unowned.
//
// Topic layout under the configured prefix:
//
//	<prefix>/dest/<name>    messages addressed to a unique or well-known name
//	<prefix>/names/<name>   retained ownership record of a well-known name
//	<prefix>/conn/<unique>  retained presence record of a live connection
//
// Messages are JSON objects carrying type, serial, reply serial, sender,
// destination, path, interface, member and ordered arguments. Method
// returns and errors answer a call through reply_serial.
//
// # Usage
//
//	conn, err := bus.Dial(ctx, bus.Options{
//	    Dialer: bus.MQTTDialer(cfg.MQTT),
//	    Topics: mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	for msg := range conn.Messages() {
//	    // route msg
//	}
//
// Package bustest provides an in-process broker with the same semantics.
package bus
