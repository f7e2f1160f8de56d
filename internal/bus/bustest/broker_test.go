package bustest

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/mqtt"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"a/+", "a/b/c", false},
		{"a/b/c/d", "a/b/c", false},
		{"a/b", "a/c", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			if got := topicMatches(tt.filter, tt.topic); got != tt.want {
				t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestBroker_RetainedAndWill(t *testing.T) {
	b := NewBroker()
	dial := b.Dialer()
	ctx := context.Background()

	will := &mqtt.Will{Topic: "presence/a", Payload: []byte("gone"), Retained: true}
	a, err := dial(ctx, "client-a", will)
	if err != nil {
		t.Fatalf("Dialer() error = %v", err)
	}
	if err := a.Publish("names/a", []byte("owner"), true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	watcher, err := dial(ctx, "client-b", nil)
	if err != nil {
		t.Fatalf("Dialer() error = %v", err)
	}
	defer watcher.Close()

	got := make(chan string, 4)
	if err := watcher.Subscribe("names/+", func(topic string, payload []byte) {
		got <- topic + "=" + string(payload)
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	select {
	case msg := <-got:
		if msg != "names/a=owner" {
			t.Errorf("retained delivery = %q, want names/a=owner", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retained message not delivered on subscribe")
	}

	lost := make(chan error, 1)
	a.SetOnLost(func(err error) { lost <- err })
	if !b.Drop("a") {
		t.Fatal("Drop() = false for a connected client")
	}
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("lost callback not run after Drop")
	}
	if payload, ok := b.Retained("presence/a"); !ok || string(payload) != "gone" {
		t.Errorf("Retained(will) = %q, %v, want gone", payload, ok)
	}
	if b.Drop("a") {
		t.Error("Drop() = true for a dropped client")
	}
}
