package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel should be initialized")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(nil)
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestMessageType_Constants(t *testing.T) {
	tests := []struct {
		msgType  MessageType
		expected string
	}{
		{MessageTypeInitialState, "initial_state"},
		{MessageTypeOccupancyUpdate, "occupancy_update"},
		{MessageTypeModeChanged, "mode_changed"},
		{MessageTypeZoneCreated, "zone_created"},
		{MessageTypeZoneUpdated, "zone_updated"},
		{MessageTypeZoneDeleted, "zone_deleted"},
		{MessageTypeParkingEvent, "parking_event"},
	}

	for _, tt := range tests {
		if string(tt.msgType) != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, string(tt.msgType))
		}
	}
}

func TestZoneChangeMessageType(t *testing.T) {
	if zoneChangeMessageType("created") != MessageTypeZoneCreated {
		t.Error("expected created -> ZoneCreated")
	}
	if zoneChangeMessageType("updated") != MessageTypeZoneUpdated {
		t.Error("expected updated -> ZoneUpdated")
	}
	if zoneChangeMessageType("deleted") != MessageTypeZoneDeleted {
		t.Error("expected deleted -> ZoneDeleted")
	}
}

// TestHubSendsInitialStateOnConnect exercises the full upgrade path:
// a client dialing in should receive the InitialState message first.
func TestHubSendsInitialStateOnConnect(t *testing.T) {
	hub := NewHub(func() Message {
		return Message{Type: MessageTypeInitialState, Data: map[string]int{"zones": 0}}
	})
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != MessageTypeInitialState {
		t.Errorf("expected initial_state message first, got %s", msg.Type)
	}
}

func TestHubBroadcastReachesConnectedClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the hub a moment to process the register message.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(Message{Type: MessageTypeOccupancyUpdate, Data: map[string]int{"count": 3}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != MessageTypeOccupancyUpdate {
		t.Errorf("expected occupancy_update, got %s", msg.Type)
	}
}
