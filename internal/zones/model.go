// Package zones provides CRUD storage for occupancy zones and their
// per-camera background frames.
package zones

import (
	"time"

	"github.com/WispAyr/baywatch/internal/imaging"
)

// Zone is a polygonal region of interest on one camera (or, with an
// empty CameraID, every camera).
type Zone struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CameraID       string          `json:"camera_id,omitempty"`
	Polygon        imaging.Polygon `json:"polygon"`
	MinArea        int             `json:"min_area"`
	MaxArea        int             `json:"max_area"`
	AlarmThreshold int             `json:"alarm_threshold"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Input is the payload accepted by Create.
type Input struct {
	Name           string          `json:"name"`
	CameraID       string          `json:"camera_id,omitempty"`
	Polygon        imaging.Polygon `json:"polygon"`
	MinArea        *int            `json:"min_area,omitempty"`
	MaxArea        *int            `json:"max_area,omitempty"`
	AlarmThreshold *int            `json:"alarm_threshold,omitempty"`
}

// Patch is a partial update accepted by Update; nil fields are untouched.
type Patch struct {
	Name           *string
	CameraID       *string
	Polygon        imaging.Polygon
	MinArea        *int
	MaxArea        *int
	AlarmThreshold *int
}

// BackgroundFrame is the stored reference background for one camera.
type BackgroundFrame struct {
	CameraID  string    `json:"camera_id"`
	Blob      []byte    `json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	DefaultMinArea        = 500
	DefaultMaxArea        = 50000
	DefaultAlarmThreshold = 1
)
