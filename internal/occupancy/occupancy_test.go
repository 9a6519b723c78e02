package occupancy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/WispAyr/baywatch/internal/database"
	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/events"
)

func newTestState(t *testing.T, sink UpdateSink) *State {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(&database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db)
	if err := migrator.Run(context.Background()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	// events.zone_id references zones(id) and foreign keys are enforced,
	// so seed the zone rows these tests write against.
	for _, id := range []string{"z1", "z2"} {
		if _, err := db.ExecContext(context.Background(),
			"INSERT INTO zones (id, name, polygon, created_at, updated_at) VALUES (?, ?, '[]', 0, 0)", id, id); err != nil {
			t.Fatalf("seed zone %s: %v", id, err)
		}
	}

	logger := events.NewLogger(db, nil)
	return NewState(logger, sink)
}

type recordingSink struct {
	updates []Entry
	evs     []*events.Event
}

func (r *recordingSink) PublishOccupancyUpdate(e Entry) { r.updates = append(r.updates, e) }
func (r *recordingSink) PublishEvent(ev *events.Event)  { r.evs = append(r.evs, ev) }

func TestWriteCreatesEntryAndAppliesAlarmThreshold(t *testing.T) {
	sink := &recordingSink{}
	s := newTestState(t, sink)

	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 2, nil, 2); err != nil {
		t.Fatalf("write: %v", err)
	}

	entry, ok := s.Get("z1")
	if !ok {
		t.Fatal("expected entry to exist after write")
	}
	if entry.Count != 2 {
		t.Errorf("expected count 2, got %d", entry.Count)
	}
	if !entry.Alarm {
		t.Error("expected alarm true when count >= threshold")
	}
	if len(sink.updates) != 1 {
		t.Fatalf("expected 1 occupancy update published, got %d", len(sink.updates))
	}
	if len(sink.evs) != 1 || sink.evs[0].Kind != events.KindEntry {
		t.Fatalf("expected one entry event published, got %+v", sink.evs)
	}
}

func TestWriteBelowThresholdNotAlarmed(t *testing.T) {
	sink := &recordingSink{}
	s := newTestState(t, sink)

	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 1, nil, 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	entry, _ := s.Get("z1")
	if entry.Alarm {
		t.Error("expected alarm false when count < threshold")
	}
}

func TestWriteNoEventWhenCountUnchanged(t *testing.T) {
	sink := &recordingSink{}
	s := newTestState(t, sink)

	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 2, nil, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 2, nil, 1); err != nil {
		t.Fatalf("write: %v", err)
	}

	if len(sink.evs) != 1 {
		t.Fatalf("expected exactly 1 event across both writes, got %d", len(sink.evs))
	}
	if len(sink.updates) != 2 {
		t.Fatalf("expected an occupancy update published for every write, got %d", len(sink.updates))
	}
}

func TestGetMissingZone(t *testing.T) {
	s := newTestState(t, nil)
	if _, ok := s.Get("missing"); ok {
		t.Error("expected no entry for unknown zone")
	}
}

func TestAllReturnsSnapshotOfEveryZone(t *testing.T) {
	s := newTestState(t, nil)
	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 1, nil, 1); err != nil {
		t.Fatalf("write z1: %v", err)
	}
	if err := s.Write(context.Background(), "z2", "hall", "cam1", 0, nil, 1); err != nil {
		t.Fatalf("write z2: %v", err)
	}

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
}

func TestRemoveDropsEntryAndForgetsSession(t *testing.T) {
	s := newTestState(t, nil)
	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 2, nil, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := s.Get("z1"); !ok {
		t.Fatal("expected entry before remove")
	}

	s.Remove("z1")

	if _, ok := s.Get("z1"); ok {
		t.Error("expected entry to be gone after remove")
	}
	if s.logger.CurrentOccupied() != 0 {
		t.Errorf("expected session forgotten after remove, CurrentOccupied=%d", s.logger.CurrentOccupied())
	}
}

func TestWritePreservesBlobs(t *testing.T) {
	s := newTestState(t, nil)
	blobs := []detect.Detection{{Label: "object", Confidence: 1.0}}
	if err := s.Write(context.Background(), "z1", "lobby", "cam1", 1, blobs, 1); err != nil {
		t.Fatalf("write: %v", err)
	}
	entry, _ := s.Get("z1")
	if len(entry.Blobs) != 1 {
		t.Fatalf("expected 1 blob preserved, got %d", len(entry.Blobs))
	}
}
