package imaging

import (
	"errors"
	"math"
	"testing"

	"github.com/WispAyr/baywatch/internal/apperr"
)

func squarePolygon(x0, y0, x1, y1 float64) Polygon {
	return Polygon{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
	}
}

// Property 1: point_in_polygon agrees with polygon_mask everywhere.
func TestPointInPolygonAgreesWithMask(t *testing.T) {
	poly := Polygon{{X: 10, Y: 10}, {X: 60, Y: 15}, {X: 55, Y: 50}, {X: 5, Y: 45}}
	w, h := 80, 80
	mask := PolygonMask(poly, w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := mask.Pix[y*w+x] == 255
			got := PointInPolygon(Point{X: float64(x), Y: float64(y)}, poly)
			if got != want {
				t.Fatalf("mismatch at (%d,%d): PointInPolygon=%v mask=%v", x, y, got, want)
			}
		}
	}
}

func TestPointInPolygonDegenerate(t *testing.T) {
	if PointInPolygon(Point{X: 1, Y: 1}, Polygon{{X: 0, Y: 0}, {X: 1, Y: 1}}) {
		t.Error("polygon with fewer than 3 points should never contain a point")
	}
}

// Property 2: morphology clean is idempotent once foreground is clear of
// the border after the first pass.
func TestMorphologyCleanIdempotent(t *testing.T) {
	p := NewPlane(30, 30)
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			p.set(x, y, 255)
		}
	}

	once := MorphologyClean(p, 2)
	twice := MorphologyClean(once, 2)

	if len(once.Pix) != len(twice.Pix) {
		t.Fatalf("dimension changed across passes")
	}
	for i := range once.Pix {
		if once.Pix[i] != twice.Pix[i] {
			t.Fatalf("morphology not idempotent at index %d: %d vs %d", i, once.Pix[i], twice.Pix[i])
		}
	}
}

// Property 3: abs_diff_threshold(a, a, t) is all zero for any t >= 0.
func TestAbsDiffThresholdSelfIsZero(t *testing.T) {
	a := NewPlane(10, 10)
	for i := range a.Pix {
		a.Pix[i] = byte(i % 256)
	}

	for _, tt := range []uint8{0, 1, 30, 255} {
		out, err := AbsDiffThreshold(a, a, tt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, v := range out.Pix {
			if v != 0 {
				t.Fatalf("expected all zero at threshold %d, got %d", tt, v)
			}
		}
	}
}

func TestAbsDiffThresholdDimensionMismatch(t *testing.T) {
	a := NewPlane(10, 10)
	b := NewPlane(5, 5)
	_, err := AbsDiffThreshold(a, b, 10)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Errorf("expected error to wrap apperr.ErrDimensionMismatch, got %v", err)
	}
}

func TestApplyMaskDimensionMismatch(t *testing.T) {
	bin := NewPlane(10, 10)
	mask := NewPlane(6, 6)
	_, err := ApplyMask(bin, mask)
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Errorf("expected error to wrap apperr.ErrDimensionMismatch, got %v", err)
	}
}

func TestRunningMeanUpdateDimensionMismatch(t *testing.T) {
	bg := NewPlane(10, 10)
	cur := NewPlane(8, 8)
	_, err := RunningMeanUpdate(bg, cur, DefaultRunningMeanAlpha)
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Errorf("expected error to wrap apperr.ErrDimensionMismatch, got %v", err)
	}
}

// Property 4: running_mean_update(bg, bg, alpha) == bg.
func TestRunningMeanUpdateFixedPoint(t *testing.T) {
	bg := NewPlane(10, 10)
	for i := range bg.Pix {
		bg.Pix[i] = byte(i * 2 % 256)
	}

	out, err := RunningMeanUpdate(bg, bg, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range bg.Pix {
		if out.Pix[i] != bg.Pix[i] {
			t.Fatalf("expected fixed point at index %d: got %d want %d", i, out.Pix[i], bg.Pix[i])
		}
	}
}

func TestRunningMeanUpdateNilBackground(t *testing.T) {
	cur := NewPlane(4, 4)
	for i := range cur.Pix {
		cur.Pix[i] = 200
	}
	out, err := RunningMeanUpdate(nil, cur, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range out.Pix {
		if out.Pix[i] != 200 {
			t.Fatalf("expected initial background to equal current frame, got %d", out.Pix[i])
		}
	}
}

// Property 5: connected_components returns exactly k blobs for k disjoint
// axis-aligned rectangles within the area bounds.
func TestConnectedComponentsDisjointRectangles(t *testing.T) {
	p := NewPlane(100, 100)
	fill := func(x0, y0, x1, y1 int) {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				p.set(x, y, 255)
			}
		}
	}
	fill(5, 5, 15, 15)   // 10x10 = 100
	fill(50, 50, 60, 65) // 10x15 = 150
	fill(80, 10, 85, 20) // 5x10 = 50

	blobs := ConnectedComponents(p, 40, 500)
	if len(blobs) != 3 {
		t.Fatalf("expected 3 blobs, got %d", len(blobs))
	}

	areas := map[int]bool{100: false, 150: false, 50: false}
	for _, b := range blobs {
		if _, ok := areas[b.Area]; !ok {
			t.Errorf("unexpected blob area %d", b.Area)
		}
		areas[b.Area] = true
	}
	for area, seen := range areas {
		if !seen {
			t.Errorf("expected a blob of area %d", area)
		}
	}
}

func TestConnectedComponentsAreaFilter(t *testing.T) {
	p := NewPlane(50, 50)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			p.set(x, y, 255) // area 9, too small
		}
	}
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			p.set(x, y, 255) // area 400, in range
		}
	}

	blobs := ConnectedComponents(p, 100, 1000)
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob after area filter, got %d", len(blobs))
	}
	if blobs[0].Area != 400 {
		t.Errorf("expected area 400, got %d", blobs[0].Area)
	}
}

// S1 — blob detection baseline, via the primitives directly (no detector
// plumbing): gray background, 20x20 black square at (40,40), full-frame
// zone polygon.
func TestScenarioS1BlobBaseline(t *testing.T) {
	w, h := 100, 100
	bg := NewPlane(w, h)
	for i := range bg.Pix {
		bg.Pix[i] = 128
	}

	frame := NewPlane(w, h)
	copy(frame.Pix, bg.Pix)
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			frame.set(x, y, 0)
		}
	}

	diff, err := AbsDiffThreshold(frame, bg, DefaultDiffThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clean := MorphologyClean(diff, 1)

	poly := squarePolygon(0, 0, 100, 100)
	mask := PolygonMask(poly, w, h)
	masked, err := ApplyMask(clean, mask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blobs := ConnectedComponents(masked, 100, 10000)
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(blobs))
	}
	b := blobs[0]
	if b.Area != 400 {
		t.Errorf("expected area 400, got %d", b.Area)
	}
	if math.Abs(b.Centroid.X-49.5) > 1 || math.Abs(b.Centroid.Y-49.5) > 1 {
		t.Errorf("expected centroid near (49,49), got (%v,%v)", b.Centroid.X, b.Centroid.Y)
	}
	if b.BBox.X != 40 || b.BBox.Y != 40 || b.BBox.W != 20 || b.BBox.H != 20 {
		t.Errorf("expected bbox {40,40,20,20}, got %+v", b.BBox)
	}
}

// S2 — polygon masking excludes the object entirely when the zone doesn't
// cover it.
func TestScenarioS2PolygonExcludesOffZoneObject(t *testing.T) {
	w, h := 100, 100
	bg := NewPlane(w, h)
	for i := range bg.Pix {
		bg.Pix[i] = 128
	}
	frame := NewPlane(w, h)
	copy(frame.Pix, bg.Pix)
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			frame.set(x, y, 0)
		}
	}

	diff, _ := AbsDiffThreshold(frame, bg, DefaultDiffThreshold)
	clean := MorphologyClean(diff, 1)

	poly := squarePolygon(0, 0, 30, 30)
	mask := PolygonMask(poly, w, h)
	masked, err := ApplyMask(clean, mask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blobs := ConnectedComponents(masked, 1, 10000)
	if len(blobs) != 0 {
		t.Fatalf("expected 0 blobs inside the smaller zone, got %d", len(blobs))
	}
}

func TestToGrayInvalidData(t *testing.T) {
	if _, err := ToGray([]byte("not a jpeg")); err == nil {
		t.Error("expected decode error for invalid jpeg bytes")
	}
}
