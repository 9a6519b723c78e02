package api

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/WispAyr/baywatch/internal/imaging"
	"github.com/WispAyr/baywatch/internal/zones"
)

// ValidationError represents a validation error with field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var cameraIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ZoneValidator validates zone creation and update payloads.
type ZoneValidator struct {
	errors ValidationErrors
}

// NewZoneValidator creates a new zone validator.
func NewZoneValidator() *ZoneValidator {
	return &ZoneValidator{errors: make(ValidationErrors, 0)}
}

// Validate validates a zone creation payload.
func (v *ZoneValidator) Validate(in zones.Input) ValidationErrors {
	v.errors = make(ValidationErrors, 0)

	v.validateName(in.Name)
	v.validateCameraID(in.CameraID)
	v.validatePolygon(in.Polygon)
	v.validateAreaBounds(in.MinArea, in.MaxArea)
	v.validateAlarmThreshold(in.AlarmThreshold)

	return v.errors
}

// ValidatePatch validates a partial zone update; only set fields are
// checked.
func (v *ZoneValidator) ValidatePatch(p zones.Patch) ValidationErrors {
	v.errors = make(ValidationErrors, 0)

	if p.Name != nil {
		v.validateName(*p.Name)
	}
	if p.CameraID != nil {
		v.validateCameraID(*p.CameraID)
	}
	if p.Polygon != nil {
		v.validatePolygon(p.Polygon)
	}
	v.validateAreaBounds(p.MinArea, p.MaxArea)
	v.validateAlarmThreshold(p.AlarmThreshold)

	return v.errors
}

func (v *ZoneValidator) validateName(name string) {
	if name == "" {
		v.errors = append(v.errors, ValidationError{Field: "name", Message: "zone name is required"})
		return
	}
	if len(name) > 100 {
		v.errors = append(v.errors, ValidationError{Field: "name", Message: "zone name must be at most 100 characters"})
	}
}

func (v *ZoneValidator) validateCameraID(cameraID string) {
	if cameraID == "" {
		return // unassigned zones apply to every camera
	}
	if !cameraIDPattern.MatchString(cameraID) {
		v.errors = append(v.errors, ValidationError{
			Field:   "camera_id",
			Message: "camera ID must contain only letters, numbers, underscores, and hyphens",
		})
	}
}

func (v *ZoneValidator) validatePolygon(polygon imaging.Polygon) {
	if len(polygon) < 3 {
		v.errors = append(v.errors, ValidationError{Field: "polygon", Message: "polygon must have at least 3 vertices"})
		return
	}
	for _, p := range polygon {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			v.errors = append(v.errors, ValidationError{Field: "polygon", Message: "polygon vertices must be finite"})
			return
		}
	}
	if polygonArea(polygon) == 0 {
		v.errors = append(v.errors, ValidationError{Field: "polygon", Message: "polygon must be non-degenerate (area > 0)"})
	}
}

// polygonArea computes the shoelace-formula area (unsigned).
func polygonArea(polygon imaging.Polygon) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

func (v *ZoneValidator) validateAreaBounds(minArea, maxArea *int) {
	if minArea != nil && *minArea < 0 {
		v.errors = append(v.errors, ValidationError{Field: "min_area", Message: "min_area must be >= 0"})
	}
	if maxArea != nil && *maxArea < 0 {
		v.errors = append(v.errors, ValidationError{Field: "max_area", Message: "max_area must be >= 0"})
	}
	if minArea != nil && maxArea != nil && *minArea > *maxArea {
		v.errors = append(v.errors, ValidationError{Field: "max_area", Message: "max_area must be >= min_area"})
	}
}

func (v *ZoneValidator) validateAlarmThreshold(t *int) {
	if t != nil && *t < 1 {
		v.errors = append(v.errors, ValidationError{Field: "alarm_threshold", Message: "alarm_threshold must be >= 1"})
	}
}

// ValidateCameraID validates a camera ID's format, standalone (used by
// handlers that accept a camera ID path parameter without a full zone
// payload, e.g. /frame/:camera_id).
func ValidateCameraID(id string) error {
	if id == "" {
		return fmt.Errorf("camera ID is required")
	}
	if !cameraIDPattern.MatchString(id) {
		return fmt.Errorf("camera ID must contain only letters, numbers, underscores, and hyphens")
	}
	if len(id) > 50 {
		return fmt.Errorf("camera ID must be at most 50 characters")
	}
	return nil
}
