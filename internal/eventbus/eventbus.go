// Package eventbus provides the internal pub/sub backbone used to fan
// occupancy and detection-mode updates out to the WebSocket hub and any
// other in-process subscriber, via an embedded NATS server.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects used across the monitor.
const (
	SubjectOccupancyChanged = "occupancy.changed"
	SubjectEventLogged      = "events.logged"
	SubjectModeChanged      = "detection.mode_changed"
	SubjectSchedulerState   = "scheduler.state_changed"
	SubjectZoneChanged      = "zones.changed"
)

// Bus wraps an embedded NATS server and client connection.
type Bus struct {
	server *server.Server
	conn   *nats.Conn
	logger *slog.Logger

	subsMu sync.RWMutex
	subs   map[string][]*nats.Subscription
}

// Config configures the embedded bus.
type Config struct {
	// Host to bind the embedded server to. Defaults to 127.0.0.1.
	Host string
	// Port to listen on. Zero means let the OS choose a free port,
	// which is the right default for a single embedded instance with
	// no cross-process discovery needs.
	Port int
}

// New starts an embedded NATS server and connects a client to it.
func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = server.RANDOM_PORT
	}

	opts := &server.Options{
		Host:   cfg.Host,
		Port:   port,
		NoSigs: true,
		NoLog:  true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(2 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready after 2s")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats: %w", err)
	}

	b := &Bus{
		server: ns,
		conn:   nc,
		logger: logger.With("component", "eventbus"),
		subs:   make(map[string][]*nats.Subscription),
	}

	b.logger.Info("event bus started", "url", ns.ClientURL())
	return b, nil
}

// ClientURL returns the embedded server's client connect URL.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Publish JSON-marshals data and publishes it to subject.
func (b *Bus) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", subject, err)
	}
	return b.conn.Publish(subject, payload)
}

// Subscribe registers a raw NATS subscription on subject.
func (b *Bus) Subscribe(subject string, handler func(*nats.Msg)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}

	b.subsMu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.subsMu.Unlock()

	return sub, nil
}

// SubscribeJSON subscribes to subject, unmarshaling each message into a
// fresh *T before invoking handler. Unmarshal failures are logged and
// dropped rather than propagated, matching the bus's best-effort delivery
// contract.
func SubscribeJSON[T any](b *Bus, subject string, handler func(T)) (*nats.Subscription, error) {
	return b.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			b.logger.Error("failed to unmarshal bus message", "subject", subject, "error", err)
			return
		}
		handler(v)
	})
}

// Unsubscribe tears down all subscriptions registered for subject.
func (b *Bus) Unsubscribe(subject string) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for _, sub := range b.subs[subject] {
		_ = sub.Unsubscribe()
	}
	delete(b.subs, subject)
}

// HealthCheck reports whether the client connection is currently active.
func (b *Bus) HealthCheck(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats connection not active")
	}
	return nil
}

// Stop drains the client connection and shuts the embedded server down.
func (b *Bus) Stop() {
	_ = b.conn.Drain()
	b.server.Shutdown()
	b.logger.Info("event bus stopped")
}
