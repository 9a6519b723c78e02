package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/WispAyr/baywatch/internal/imaging"
)

func solidJPEG(t *testing.T, w, h int, c color.Gray) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestFrameNoZonesReturnsRawJPEG(t *testing.T) {
	raw := solidJPEG(t, 20, 20, color.Gray{Y: 100})
	out, err := Frame(raw, nil, nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if &out[0] != &raw[0] && !bytes.Equal(out, raw) {
		t.Errorf("expected raw passthrough when no zones present")
	}
}

func TestFrameWithZoneReencodesAndChangesPixels(t *testing.T) {
	raw := solidJPEG(t, 50, 50, color.Gray{Y: 50})
	zones := []ZoneOverlay{
		{Name: "dock", Count: 2, Alarm: false, Polygon: imaging.Polygon{
			{X: 5, Y: 5}, {X: 40, Y: 5}, {X: 40, Y: 40}, {X: 5, Y: 40},
		}},
	}
	out, err := Frame(raw, zones, nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode annotated output: %v", err)
	}
	r, g, b, _ := img.At(20, 20).RGBA()
	if r>>8 == 50 && g>>8 == 50 && b>>8 == 50 {
		t.Error("expected zone fill to change pixel color inside polygon")
	}
}

func TestFrameAlarmZoneUsesRedNotGreen(t *testing.T) {
	raw := solidJPEG(t, 50, 50, color.Gray{Y: 0})
	zones := []ZoneOverlay{
		{Name: "z", Count: 1, Alarm: true, Polygon: imaging.Polygon{
			{X: 5, Y: 5}, {X: 40, Y: 5}, {X: 40, Y: 40}, {X: 5, Y: 40},
		}},
	}
	out, err := Frame(raw, zones, nil)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, _, _ := img.At(20, 20).RGBA()
	if r>>8 <= g>>8 {
		t.Errorf("expected red channel to dominate in alarm fill, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestFrameWithBlobsDrawsWithoutError(t *testing.T) {
	raw := solidJPEG(t, 60, 60, color.Gray{Y: 120})
	zones := []ZoneOverlay{
		{Name: "z", Count: 1, Polygon: imaging.Polygon{
			{X: 0, Y: 0}, {X: 59, Y: 0}, {X: 59, Y: 59}, {X: 0, Y: 59},
		}},
	}
	blobs := []BlobOverlay{
		{BBox: imaging.BoundingBox{X: 10, Y: 10, W: 15, H: 15}, Centroid: imaging.Point{X: 17, Y: 17}},
	}
	out, err := Frame(raw, zones, blobs)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("expected valid jpeg output: %v", err)
	}
}

func TestFrameInvalidJPEGErrors(t *testing.T) {
	zones := []ZoneOverlay{{Name: "z", Polygon: imaging.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}}
	_, err := Frame([]byte("not a jpeg"), zones, nil)
	if err == nil {
		t.Fatal("expected error decoding invalid jpeg")
	}
}
