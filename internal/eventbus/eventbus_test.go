package eventbus

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribeJSON(t *testing.T) {
	b, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("failed to start bus: %v", err)
	}
	defer b.Stop()

	type payload struct {
		ZoneID string `json:"zone_id"`
		Count  int    `json:"count"`
	}

	var mu sync.Mutex
	var received payload
	done := make(chan struct{})

	_, err = SubscribeJSON(b, "test.subject", func(p payload) {
		mu.Lock()
		received = p
		mu.Unlock()
		close(done)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := b.Publish("test.subject", payload{ZoneID: "z1", Count: 3}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received.ZoneID != "z1" || received.Count != 3 {
		t.Errorf("unexpected payload: %+v", received)
	}
}

func TestHealthCheck(t *testing.T) {
	b, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("failed to start bus: %v", err)
	}
	defer b.Stop()

	if err := b.HealthCheck(nil); err != nil {
		t.Errorf("expected healthy bus, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b, err := New(Config{}, testLogger())
	if err != nil {
		t.Fatalf("failed to start bus: %v", err)
	}
	defer b.Stop()

	sub, err := b.Subscribe("another.subject", func(msg *nats.Msg) {})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if !sub.IsValid() {
		t.Fatal("expected subscription to be valid before unsubscribe")
	}

	b.Unsubscribe("another.subject")
	if sub.IsValid() {
		t.Error("expected subscription to be invalid after unsubscribe")
	}
}
