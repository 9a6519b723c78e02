package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WispAyr/baywatch/internal/apperr"
	"github.com/WispAyr/baywatch/internal/database"
)

// Logger appends occupancy transitions to the row store and tracks the
// live entry/exit session per zone.
type Logger struct {
	db     *database.DB
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	onEvent func(*Event)
}

// NewLogger constructs an event logger over an open database. onEvent, if
// non-nil, is called synchronously after each successfully persisted
// event. The occupancy container does not rely on it: it publishes the
// event returned by Log through its own UpdateSink.
func NewLogger(db *database.DB, onEvent func(*Event)) *Logger {
	return &Logger{
		db:       db,
		logger:   slog.Default().With("component", "event_logger"),
		sessions: make(map[string]*session),
		onEvent:  onEvent,
	}
}

// Log runs the per-zone entry/exit/occupancy_change state machine for a
// prev -> new occupancy transition and persists the resulting event, if
// any. A prev == new transition is a no-op and returns (nil, nil).
func (l *Logger) Log(ctx context.Context, zoneID, zoneName, cameraID string, prev, newCount int) (*Event, error) {
	if prev == newCount {
		return nil, nil
	}

	now := time.Now()
	ev := &Event{
		ID:          uuid.New().String(),
		ZoneID:      zoneID,
		ZoneName:    zoneName,
		CameraID:    cameraID,
		CountBefore: prev,
		CountAfter:  newCount,
		Timestamp:   now,
	}

	l.mu.Lock()
	switch {
	case prev == 0 && newCount > 0:
		ev.Kind = KindEntry
		ev.EntryTime = &now
		l.sessions[zoneID] = &session{EntryTime: now, Count: newCount}

	case prev > 0 && newCount == 0:
		ev.Kind = KindExit
		ev.ExitTime = &now
		if s, ok := l.sessions[zoneID]; ok {
			entryTime := s.EntryTime
			ev.EntryTime = &entryTime
			dur := now.Sub(entryTime).Seconds()
			ev.DurationSeconds = &dur
			delete(l.sessions, zoneID)
		}

	default:
		ev.Kind = KindOccupancyChange
	}
	l.mu.Unlock()

	if err := l.insert(ctx, ev); err != nil {
		return nil, err
	}

	l.logger.Info("occupancy event", "zone_id", zoneID, "kind", ev.Kind, "prev", prev, "new", newCount)

	if l.onEvent != nil {
		l.onEvent(ev)
	}

	return ev, nil
}

func (l *Logger) insert(ctx context.Context, ev *Event) error {
	var entryTime, exitTime *int64
	if ev.EntryTime != nil {
		t := ev.EntryTime.Unix()
		entryTime = &t
	}
	if ev.ExitTime != nil {
		t := ev.ExitTime.Unix()
		exitTime = &t
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO events (id, zone_id, zone_name, camera_id, kind, count_before, count_after, duration_seconds, entry_time, exit_time, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.ZoneID, ev.ZoneName, nullableStr(ev.CameraID), string(ev.Kind), ev.CountBefore, ev.CountAfter,
		ev.DurationSeconds, entryTime, exitTime, ev.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w: %w", apperr.ErrPersistence, err)
	}
	return nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CurrentOccupied reports how many zones currently have an open session.
func (l *Logger) CurrentOccupied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

const eventColumns = `id, zone_id, zone_name, camera_id, kind, count_before, count_after, duration_seconds, entry_time, exit_time, timestamp`

func scanEvent(scan func(dest ...any) error) (*Event, error) {
	ev := &Event{}
	var cameraID sql.NullString
	var duration sql.NullFloat64
	var entryTime, exitTime sql.NullInt64
	var timestamp int64
	var kind string

	if err := scan(&ev.ID, &ev.ZoneID, &ev.ZoneName, &cameraID, &kind, &ev.CountBefore, &ev.CountAfter,
		&duration, &entryTime, &exitTime, &timestamp); err != nil {
		return nil, err
	}

	ev.Kind = Kind(kind)
	ev.Timestamp = time.Unix(timestamp, 0)
	if cameraID.Valid {
		ev.CameraID = cameraID.String
	}
	if duration.Valid {
		d := duration.Float64
		ev.DurationSeconds = &d
	}
	if entryTime.Valid {
		t := time.Unix(entryTime.Int64, 0)
		ev.EntryTime = &t
	}
	if exitTime.Valid {
		t := time.Unix(exitTime.Int64, 0)
		ev.ExitTime = &t
	}

	return ev, nil
}

// List returns events matching opts, newest first, plus the total count
// ignoring limit/offset.
func (l *Logger) List(ctx context.Context, opts ListOptions) ([]*Event, int, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE 1=1"
	countQuery := "SELECT COUNT(*) FROM events WHERE 1=1"
	args := []any{}

	addFilter := func(clause string, val any) {
		query += clause
		countQuery += clause
		args = append(args, val)
	}

	if opts.ZoneID != "" {
		addFilter(" AND zone_id = ?", opts.ZoneID)
	}
	if opts.CameraID != "" {
		addFilter(" AND camera_id = ?", opts.CameraID)
	}
	if opts.Kind != "" {
		addFilter(" AND kind = ?", string(opts.Kind))
	}
	if !opts.Since.IsZero() {
		addFilter(" AND timestamp >= ?", opts.Since.Unix())
	}
	if !opts.Until.IsZero() {
		addFilter(" AND timestamp <= ?", opts.Until.Unix())
	}

	var total int
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY timestamp DESC"
	limit := 50
	if opts.Limit > 0 && opts.Limit <= 1000 {
		limit = opts.Limit
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// GetStats aggregates totals, average completed-session duration, and the
// live occupied-zone count, optionally bounded by a since timestamp.
func (l *Logger) GetStats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{CurrentOccupied: l.CurrentOccupied()}

	sinceClause := ""
	args := []any{}
	if !since.IsZero() {
		sinceClause = " AND timestamp >= ?"
		args = append(args, since.Unix())
	}

	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE kind = 'entry'"+sinceClause, args...).Scan(&stats.TotalEntries); err != nil {
		return nil, err
	}
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE kind = 'exit'"+sinceClause, args...).Scan(&stats.TotalExits); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := l.db.QueryRowContext(ctx,
		"SELECT AVG(duration_seconds) FROM events WHERE kind = 'exit' AND duration_seconds IS NOT NULL"+sinceClause, args...,
	).Scan(&avg); err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgDurationSeconds = avg.Float64
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT zone_id, zone_name,
		       SUM(CASE WHEN kind = 'entry' THEN 1 ELSE 0 END) AS entries,
		       SUM(CASE WHEN kind = 'exit' THEN 1 ELSE 0 END) AS exits
		FROM events
		WHERE 1=1`+sinceClause+`
		GROUP BY zone_id, zone_name
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	for rows.Next() {
		var zs ZoneStats
		if err := rows.Scan(&zs.ZoneID, &zs.ZoneName, &zs.Entries, &zs.Exits); err != nil {
			return nil, err
		}
		_, zs.Occupied = l.sessions[zs.ZoneID]
		stats.ByZone = append(stats.ByZone, zs)
	}

	return stats, rows.Err()
}

// ForgetZone drops any live session tracked for a deleted zone. It does
// not touch the row store; callers delete event rows via the zone
// store's cascading delete.
func (l *Logger) ForgetZone(zoneID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, zoneID)
}
