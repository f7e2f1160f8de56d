// Package bustest provides an in-process broker for testing code built on
// package bus.
package bustest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
)

// Broker is an in-process publish/subscribe broker with retained messages
// and Last Will support. Every connection dialled through it shares one
// address space.
type Broker struct {
	mu       sync.Mutex
	retained map[string][]byte
	clients  map[*memTransport]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		retained: make(map[string][]byte),
		clients:  make(map[*memTransport]struct{}),
	}
}

// Dialer returns a Dialer attaching connections to this broker.
func (b *Broker) Dialer() bus.Dialer {
	return func(ctx context.Context, clientID string, will *mqtt.Will) (bus.Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return b.attach(clientID, will), nil
	}
}

// Retained returns the retained payload stored for topic.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.retained[topic]
	return p, ok
}

// Drop severs the connection with clientID as if the network failed:
// its will is published and its lost callback runs.
func (b *Broker) Drop(clientID string) bool {
	b.mu.Lock()
	var target *memTransport
	for t := range b.clients {
		if t.clientID == clientID || strings.HasSuffix(t.clientID, "-"+clientID) {
			target = t
			break
		}
	}
	b.mu.Unlock()

	if target == nil {
		return false
	}
	target.drop(errors.New("bustest: connection dropped"))
	return true
}

func (b *Broker) attach(clientID string, will *mqtt.Will) *memTransport {
	t := &memTransport{
		broker:   b,
		clientID: clientID,
		will:     will,
		subs:     make(map[string]bus.Handler),
		done:     make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)

	b.mu.Lock()
	b.clients[t] = struct{}{}
	b.mu.Unlock()

	go t.deliverLoop()
	return t
}

func (b *Broker) detach(t *memTransport) {
	b.mu.Lock()
	delete(b.clients, t)
	b.mu.Unlock()
}

func (b *Broker) publish(topic string, payload []byte, retained bool) {
	b.mu.Lock()
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = append([]byte(nil), payload...)
		}
	}
	targets := make([]*memTransport, 0, len(b.clients))
	for t := range b.clients {
		targets = append(targets, t)
	}
	b.mu.Unlock()

	// A cleared retained message is not forwarded.
	if retained && len(payload) == 0 {
		return
	}
	for _, t := range targets {
		t.enqueue(topic, payload)
	}
}

// retainedMatching returns retained messages matching filter.
func (b *Broker) retainedMatching(filter string) []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []delivery
	for topic, payload := range b.retained {
		if topicMatches(filter, topic) {
			out = append(out, delivery{topic: topic, payload: payload})
		}
	}
	return out
}

type delivery struct {
	topic   string
	payload []byte
	handler bus.Handler
}

// memTransport is one connection to a Broker. Messages are handed to
// handlers by a single goroutine in arrival order.
type memTransport struct {
	broker   *Broker
	clientID string
	will     *mqtt.Will

	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[string]bus.Handler
	queue  []delivery
	closed bool
	onLost func(error)
	done   chan struct{}
}

func (t *memTransport) Publish(topic string, payload []byte, retained bool) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return mqtt.ErrNotConnected
	}
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}
	t.broker.publish(topic, payload, retained)
	return nil
}

func (t *memTransport) Subscribe(topic string, handler bus.Handler) error {
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	t.subs[topic] = handler
	for _, d := range t.broker.retainedMatching(topic) {
		d.handler = handler
		t.queue = append(t.queue, d)
	}
	t.cond.Signal()
	t.mu.Unlock()
	return nil
}

func (t *memTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mqtt.ErrNotConnected
	}
	delete(t.subs, topic)
	return nil
}

func (t *memTransport) SetOnLost(fn func(error)) {
	t.mu.Lock()
	t.onLost = fn
	t.mu.Unlock()
}

func (t *memTransport) Close() error {
	if !t.shutdown() {
		return nil
	}
	<-t.done
	return nil
}

// shutdown detaches the transport; false if it was already closed.
func (t *memTransport) shutdown() bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	t.queue = nil
	t.cond.Broadcast()
	t.mu.Unlock()

	t.broker.detach(t)
	return true
}

func (t *memTransport) drop(err error) {
	if !t.shutdown() {
		return
	}
	if t.will != nil {
		t.broker.publish(t.will.Topic, t.will.Payload, t.will.Retained)
	}

	t.mu.Lock()
	onLost := t.onLost
	t.mu.Unlock()
	if onLost != nil {
		go onLost(err)
	}
}

func (t *memTransport) enqueue(topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for filter, h := range t.subs {
		if topicMatches(filter, topic) {
			t.queue = append(t.queue, delivery{topic: topic, payload: payload, handler: h})
			t.cond.Signal()
			return
		}
	}
}

func (t *memTransport) deliverLoop() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.closed {
			t.cond.Wait()
		}
		if t.closed {
			t.mu.Unlock()
			return
		}
		d := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		d.handler(d.topic, d.payload)
	}
}

// topicMatches reports whether topic matches an MQTT subscription filter.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
