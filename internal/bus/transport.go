package bus

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
)

// Handler receives raw payloads for a subscribed topic.
type Handler func(topic string, payload []byte)

// Transport is the publish/subscribe link a Conn runs on.
//
// Implementations must deliver messages for a topic in publish order and
// must not call handlers concurrently with each other.
type Transport interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler Handler) error
	Unsubscribe(topic string) error

	// SetOnLost registers the callback run once when the link drops
	// without Close being called.
	SetOnLost(func(error))

	Close() error
}

// Dialer opens a Transport for a connection. clientID is unique per
// connection; will, when non-nil, must be published by the broker if the
// link drops without Close.
type Dialer func(ctx context.Context, clientID string, will *mqtt.Will) (Transport, error)

// MQTTDialer returns a Dialer connecting to the broker in cfg.
//
// The configured client ID, when set, is used as a prefix for the unique
// connection client ID.
func MQTTDialer(cfg config.MQTTConfig) Dialer {
	return func(ctx context.Context, clientID string, will *mqtt.Will) (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := cfg
		if c.Broker.ClientID != "" {
			clientID = c.Broker.ClientID + "-" + clientID
		}
		c.Broker.ClientID = clientID

		client, err := mqtt.Connect(c, will)
		if err != nil {
			return nil, fmt.Errorf("dialing bus broker: %w", err)
		}
		return &mqttTransport{client: client}, nil
	}
}

// mqttTransport adapts mqtt.Client to Transport.
type mqttTransport struct {
	client *mqtt.Client
}

func (t *mqttTransport) Publish(topic string, payload []byte, retained bool) error {
	return t.client.PublishDefault(topic, payload, retained)
}

func (t *mqttTransport) Subscribe(topic string, handler Handler) error {
	return t.client.SubscribeDefault(topic, func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	})
}

func (t *mqttTransport) Unsubscribe(topic string) error {
	return t.client.Unsubscribe(topic)
}

func (t *mqttTransport) SetOnLost(fn func(error)) {
	t.client.SetOnDisconnect(fn)
}

func (t *mqttTransport) Close() error {
	return t.client.Close()
}

// SetLogger forwards handler errors and panics of the underlying client.
func (t *mqttTransport) SetLogger(logger mqtt.Logger) {
	t.client.SetLogger(logger)
}
