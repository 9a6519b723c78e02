// Package events logs occupancy transitions to the row store and drives
// the per-zone entry/exit session state machine.
package events

import "time"

// Kind enumerates the occupancy transitions that get logged.
type Kind string

const (
	KindEntry           Kind = "entry"
	KindExit            Kind = "exit"
	KindOccupancyChange Kind = "occupancy_change"
)

// Event is one append-only occupancy transition record.
type Event struct {
	ID               string     `json:"id"`
	ZoneID           string     `json:"zone_id"`
	ZoneName         string     `json:"zone_name"`
	CameraID         string     `json:"camera_id,omitempty"`
	Kind             Kind       `json:"kind"`
	CountBefore      int        `json:"count_before"`
	CountAfter       int        `json:"count_after"`
	DurationSeconds  *float64   `json:"duration_seconds,omitempty"`
	EntryTime        *time.Time `json:"entry_time,omitempty"`
	ExitTime         *time.Time `json:"exit_time,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// ListOptions filters a history query.
type ListOptions struct {
	ZoneID    string
	CameraID  string
	Kind      Kind
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Stats summarizes event history, optionally since a lower time bound.
type Stats struct {
	TotalEntries       int            `json:"total_entries"`
	TotalExits         int            `json:"total_exits"`
	CurrentOccupied    int            `json:"current_occupied"`
	AvgDurationSeconds float64        `json:"avg_duration_seconds"`
	ByZone             []ZoneStats    `json:"by_zone"`
}

// ZoneStats is the per-zone breakdown inside Stats.
type ZoneStats struct {
	ZoneID     string `json:"zone_id"`
	ZoneName   string `json:"zone_name"`
	Entries    int    `json:"entries"`
	Exits      int    `json:"exits"`
	Occupied   bool   `json:"occupied"`
}

// session tracks an open dwell-time window for one zone.
type session struct {
	EntryTime time.Time
	Count     int
}
