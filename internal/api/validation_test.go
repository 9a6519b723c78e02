package api

import (
	"testing"

	"github.com/WispAyr/baywatch/internal/imaging"
	"github.com/WispAyr/baywatch/internal/zones"
)

func square() imaging.Polygon {
	return imaging.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
}

func intp(v int) *int { return &v }

func TestZoneValidator_ValidatesValidInput(t *testing.T) {
	v := NewZoneValidator()
	in := zones.Input{Name: "Dock A", CameraID: "cam_1", Polygon: square()}
	errs := v.Validate(in)
	if errs.HasErrors() {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestZoneValidator_MissingName(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Polygon: square()})
	if !errs.HasErrors() {
		t.Fatal("expected error for missing name")
	}
	found := false
	for _, e := range errs {
		if e.Field == "name" {
			found = true
		}
	}
	if !found {
		t.Error("expected error on 'name' field")
	}
}

func TestZoneValidator_EmptyCameraIDAllowed(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Name: "All cameras", Polygon: square()})
	if errs.HasErrors() {
		t.Errorf("expected no errors for unassigned zone, got %v", errs)
	}
}

func TestZoneValidator_RejectsBadCameraID(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Name: "z", CameraID: "bad id!", Polygon: square()})
	if !errs.HasErrors() {
		t.Fatal("expected error for invalid camera id")
	}
}

func TestZoneValidator_RejectsShortPolygon(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Name: "z", Polygon: imaging.Polygon{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	if !errs.HasErrors() {
		t.Fatal("expected error for polygon with < 3 vertices")
	}
}

func TestZoneValidator_RejectsDegeneratePolygon(t *testing.T) {
	v := NewZoneValidator()
	collinear := imaging.Polygon{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}}
	errs := v.Validate(zones.Input{Name: "z", Polygon: collinear})
	if !errs.HasErrors() {
		t.Fatal("expected error for degenerate (zero-area) polygon")
	}
}

func TestZoneValidator_RejectsNonFiniteVertex(t *testing.T) {
	v := NewZoneValidator()
	bad := imaging.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	bad[0].X = mathNaN()
	errs := v.Validate(zones.Input{Name: "z", Polygon: bad})
	if !errs.HasErrors() {
		t.Fatal("expected error for NaN vertex")
	}
}

func TestZoneValidator_RejectsMinGreaterThanMax(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Name: "z", Polygon: square(), MinArea: intp(100), MaxArea: intp(50)})
	if !errs.HasErrors() {
		t.Fatal("expected error when min_area > max_area")
	}
}

func TestZoneValidator_RejectsZeroAlarmThreshold(t *testing.T) {
	v := NewZoneValidator()
	errs := v.Validate(zones.Input{Name: "z", Polygon: square(), AlarmThreshold: intp(0)})
	if !errs.HasErrors() {
		t.Fatal("expected error for alarm_threshold < 1")
	}
}

func TestZoneValidator_Patch_OnlyValidatesSetFields(t *testing.T) {
	v := NewZoneValidator()
	name := ""
	errs := v.ValidatePatch(zones.Patch{})
	if errs.HasErrors() {
		t.Errorf("expected no errors for empty patch, got %v", errs)
	}
	_ = name
}

func TestZoneValidator_Patch_ValidatesSetName(t *testing.T) {
	v := NewZoneValidator()
	name := ""
	errs := v.ValidatePatch(zones.Patch{Name: &name})
	if !errs.HasErrors() {
		t.Fatal("expected error for empty name when explicitly set")
	}
}

func TestValidateCameraID_Valid(t *testing.T) {
	if err := ValidateCameraID("cam_front-01"); err != nil {
		t.Errorf("expected valid camera id, got %v", err)
	}
}

func TestValidateCameraID_Empty(t *testing.T) {
	if err := ValidateCameraID(""); err == nil {
		t.Error("expected error for empty camera id")
	}
}

func TestValidateCameraID_InvalidChars(t *testing.T) {
	if err := ValidateCameraID("cam 1!"); err == nil {
		t.Error("expected error for camera id with invalid characters")
	}
}

func mathNaN() float64 {
	var zero float64
	return zero / zero
}
