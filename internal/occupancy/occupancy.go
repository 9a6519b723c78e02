// Package occupancy holds the process-wide live occupancy state: one
// entry per zone, mutated by the scheduler and the /analyze handler,
// read by HTTP handlers and the frame renderer.
package occupancy

import (
	"context"
	"sync"
	"time"

	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/events"
)

// Entry is the live state for one zone.
type Entry struct {
	ZoneID      string             `json:"zone_id"`
	ZoneName    string             `json:"zone_name"`
	CameraID    string             `json:"camera_id,omitempty"`
	Count       int                `json:"count"`
	Blobs       []detect.Detection `json:"blobs"`
	Timestamp   time.Time          `json:"timestamp"`
	Alarm       bool               `json:"alarm"`
}

// UpdateSink receives a fan-out notification whenever occupancy changes.
// Implemented by the WebSocket hub's eventbus-backed publisher; kept as
// an interface here so this package never imports the transport layer.
type UpdateSink interface {
	PublishOccupancyUpdate(e Entry)
	PublishEvent(ev *events.Event)
}

// State is the guarded process-wide occupancy map.
type State struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	logger *events.Logger
	sink   UpdateSink
}

// NewState constructs an empty occupancy container.
func NewState(logger *events.Logger, sink UpdateSink) *State {
	return &State{
		entries: make(map[string]*Entry),
		logger:  logger,
		sink:    sink,
	}
}

// Write updates the zone's entry and logs the resulting transition as
// one atomic read-modify-write-then-log sequence: s.mu stays held from
// the prev-count read through the event-logger call, so two concurrent
// writers to the same zone (e.g. a scheduler tick racing an /analyze
// call) can never have their mutation-then-log steps interleave. The
// event logger observes (prev, new) pairs in the same total order the
// state map was actually mutated in. alarmThreshold is the zone's
// configured threshold; the written entry's Alarm field is
// count >= alarmThreshold.
func (s *State) Write(ctx context.Context, zoneID, zoneName, cameraID string, count int, blobs []detect.Detection, alarmThreshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := 0
	if e, ok := s.entries[zoneID]; ok {
		prev = e.Count
	}

	entry := &Entry{
		ZoneID:    zoneID,
		ZoneName:  zoneName,
		CameraID:  cameraID,
		Count:     count,
		Blobs:     blobs,
		Timestamp: time.Now(),
		Alarm:     count >= alarmThreshold,
	}
	s.entries[zoneID] = entry

	if s.sink != nil {
		s.sink.PublishOccupancyUpdate(*entry)
	}

	ev, err := s.logger.Log(ctx, zoneID, zoneName, cameraID, prev, count)
	if err != nil {
		return err
	}
	if ev != nil && s.sink != nil {
		s.sink.PublishEvent(ev)
	}

	return nil
}

// Get returns the current entry for a zone, if one exists.
func (s *State) Get(zoneID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[zoneID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a snapshot of every tracked entry.
func (s *State) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Remove drops a zone's live entry and forgets any open session,
// called when a zone is deleted from the store.
func (s *State) Remove(zoneID string) {
	s.mu.Lock()
	delete(s.entries, zoneID)
	s.mu.Unlock()
	s.logger.ForgetZone(zoneID)
}
