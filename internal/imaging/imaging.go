// Package imaging implements the pure image-processing primitives the
// blob detector is built on: grayscale conversion, threshold diffing,
// morphology, polygon rasterization, and connected-component labeling.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/WispAyr/baywatch/internal/apperr"
)

// Plane is an 8-bit single-channel image buffer.
type Plane struct {
	Pix []byte
	W   int
	H   int
}

// NewPlane allocates a zeroed plane of the given dimensions.
func NewPlane(w, h int) *Plane {
	return &Plane{Pix: make([]byte, w*h), W: w, H: h}
}

func (p *Plane) at(x, y int) byte {
	return p.Pix[y*p.W+x]
}

func (p *Plane) set(x, y int, v byte) {
	p.Pix[y*p.W+x] = v
}

// SameDimensions reports whether two planes share width and height.
func SameDimensions(a, b *Plane) bool {
	return a.W == b.W && a.H == b.H
}

// Point is a pixel-space coordinate. Float so polygon vertices and
// centroids can share the same type.
type Point struct {
	X float64
	Y float64
}

// Polygon is an ordered list of vertices in image pixel space.
type Polygon []Point

// BoundingBox is an axis-aligned, inclusive-on-all-sides box.
type BoundingBox struct {
	X int
	Y int
	W int
	H int
}

// Blob is a connected component of foreground pixels.
type Blob struct {
	ID       int
	Area     int
	Centroid Point
	BBox     BoundingBox
}

// ToGray decodes a JPEG and converts it to an 8-bit luma plane using the
// standard ITU-R BT.601 luma weights.
func ToGray(jpegData []byte) (*Plane, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := NewPlane(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA() returns 16-bit-scaled components; reduce to 8-bit
			// before applying the luma weights.
			r8, g8, b8 := float64(r>>8), float64(g>>8), float64(b>>8)
			lum := 0.299*r8 + 0.587*g8 + 0.114*b8
			plane.set(x, y, byte(math.Round(lum)))
		}
	}

	return plane, nil
}

// DefaultDiffThreshold is the default abs-diff threshold t.
const DefaultDiffThreshold = 30

// AbsDiffThreshold emits 255 at every index where |a_i - b_i| > t, else 0.
// a and b must share dimensions.
func AbsDiffThreshold(a, b *Plane, t uint8) (*Plane, error) {
	if !SameDimensions(a, b) {
		return nil, fmt.Errorf("dimension mismatch: %dx%d vs %dx%d: %w", a.W, a.H, b.W, b.H, apperr.ErrDimensionMismatch)
	}

	out := NewPlane(a.W, a.H)
	for i := range a.Pix {
		diff := int(a.Pix[i]) - int(b.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int(t) {
			out.Pix[i] = 255
		}
	}
	return out, nil
}

// MeanLuma returns the mean pixel value of a plane.
func MeanLuma(p *Plane) float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	var sum int
	for _, v := range p.Pix {
		sum += int(v)
	}
	return float64(sum) / float64(len(p.Pix))
}

// ThresholdAgainstMean emits 255 wherever |pixel - mean| > t, used as the
// degraded fallback when no background frame is available.
func ThresholdAgainstMean(p *Plane, t uint8) *Plane {
	mean := MeanLuma(p)
	out := NewPlane(p.W, p.H)
	for i, v := range p.Pix {
		diff := float64(v) - mean
		if diff < 0 {
			diff = -diff
		}
		if diff > float64(t) {
			out.Pix[i] = 255
		}
	}
	return out
}

// Erode applies an n-pass 3x3 square erosion: a pixel stays foreground
// only if all 8 neighbors are foreground. The 1-pixel border is always
// set to 0.
func Erode(bin *Plane, n int) *Plane {
	cur := bin
	for i := 0; i < n; i++ {
		out := NewPlane(cur.W, cur.H)
		for y := 1; y < cur.H-1; y++ {
			for x := 1; x < cur.W-1; x++ {
				all := true
				for dy := -1; dy <= 1 && all; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if cur.at(x+dx, y+dy) == 0 {
							all = false
							break
						}
					}
				}
				if all {
					out.set(x, y, 255)
				}
			}
		}
		cur = out
	}
	return cur
}

// Dilate applies an n-pass 3x3 square dilation: a pixel becomes
// foreground if any of its 8 neighbors are foreground. Border pixels
// are left as-is (not forced to 0).
func Dilate(bin *Plane, n int) *Plane {
	cur := bin
	for i := 0; i < n; i++ {
		out := NewPlane(cur.W, cur.H)
		copy(out.Pix, cur.Pix)
		for y := 0; y < cur.H; y++ {
			for x := 0; x < cur.W; x++ {
				if cur.at(x, y) != 0 {
					continue
				}
				any := false
				for dy := -1; dy <= 1 && !any; dy++ {
					ny := y + dy
					if ny < 0 || ny >= cur.H {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := x + dx
						if nx < 0 || nx >= cur.W {
							continue
						}
						if cur.at(nx, ny) != 0 {
							any = true
							break
						}
					}
				}
				if any {
					out.set(x, y, 255)
				}
			}
		}
		cur = out
	}
	return cur
}

// DefaultMorphPasses is the default erode/dilate pass count n.
const DefaultMorphPasses = 2

// MorphologyClean is erode(n) composed with dilate(n): it removes
// speckle while preserving the mass of larger objects.
func MorphologyClean(bin *Plane, n int) *Plane {
	return Dilate(Erode(bin, n), n)
}

// PointInPolygon reports whether p lies inside polygon using the
// even-odd ray-casting rule. Horizontal-edge ties at a vertex's y are
// resolved by the "yi > y strictly greater than yj > y" test, which
// avoids double-counting at shared vertices.
func PointInPolygon(p Point, polygon Polygon) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := polygon[i].X, polygon[i].Y
		xj, yj := polygon[j].X, polygon[j].Y

		if ((yi > p.Y) != (yj > p.Y)) &&
			(p.X < (xj-xi)*(p.Y-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// PolygonMask rasterizes a polygon into a plane: 255 for pixels inside
// the polygon, 0 outside, using the same rule as PointInPolygon.
func PolygonMask(polygon Polygon, w, h int) *Plane {
	out := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if PointInPolygon(Point{X: float64(x), Y: float64(y)}, polygon) {
				out.set(x, y, 255)
			}
		}
	}
	return out
}

// ApplyMask keeps bin's value where mask is 255, zeros it elsewhere.
// bin and mask must share dimensions.
func ApplyMask(bin, mask *Plane) (*Plane, error) {
	if !SameDimensions(bin, mask) {
		return nil, fmt.Errorf("dimension mismatch: %dx%d vs %dx%d: %w", bin.W, bin.H, mask.W, mask.H, apperr.ErrDimensionMismatch)
	}
	out := NewPlane(bin.W, bin.H)
	for i := range bin.Pix {
		if mask.Pix[i] == 255 {
			out.Pix[i] = bin.Pix[i]
		}
	}
	return out, nil
}

// ConnectedComponents extracts 4-connected foreground components via
// flood fill in row-major scan order, keeping only components whose
// area falls within [minArea, maxArea].
func ConnectedComponents(bin *Plane, minArea, maxArea int) []Blob {
	w, h := bin.W, bin.H
	visited := make([]bool, w*h)
	var blobs []Blob
	nextID := 0

	type coord struct{ x, y int }
	queue := make([]coord, 0, 64)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if visited[idx] || bin.Pix[idx] == 0 {
				continue
			}

			queue = queue[:0]
			queue = append(queue, coord{x, y})
			visited[idx] = true

			var area, sumX, sumY int
			minX, minY := x, y
			maxX, maxY := x, y

			for len(queue) > 0 {
				c := queue[len(queue)-1]
				queue = queue[:len(queue)-1]

				area++
				sumX += c.x
				sumY += c.y
				if c.x < minX {
					minX = c.x
				}
				if c.x > maxX {
					maxX = c.x
				}
				if c.y < minY {
					minY = c.y
				}
				if c.y > maxY {
					maxY = c.y
				}

				neighbors := [4]coord{
					{c.x - 1, c.y}, {c.x + 1, c.y},
					{c.x, c.y - 1}, {c.x, c.y + 1},
				}
				for _, n := range neighbors {
					if n.x < 0 || n.x >= w || n.y < 0 || n.y >= h {
						continue
					}
					nidx := n.y*w + n.x
					if visited[nidx] || bin.Pix[nidx] == 0 {
						continue
					}
					visited[nidx] = true
					queue = append(queue, n)
				}
			}

			if area < minArea || area > maxArea {
				continue
			}

			blobs = append(blobs, Blob{
				ID:   nextID,
				Area: area,
				Centroid: Point{
					X: math.Round(float64(sumX) / float64(area)),
					Y: math.Round(float64(sumY) / float64(area)),
				},
				BBox: BoundingBox{
					X: minX,
					Y: minY,
					W: maxX - minX + 1,
					H: maxY - minY + 1,
				},
			})
			nextID++
		}
	}

	return blobs
}

// DefaultRunningMeanAlpha is the default running-mean smoothing factor.
const DefaultRunningMeanAlpha = 0.1

// RunningMeanUpdate computes round((1-alpha)*bg + alpha*cur) pixelwise.
// When bg is nil, cur becomes the initial background unaveraged.
func RunningMeanUpdate(bg, cur *Plane, alpha float64) (*Plane, error) {
	if bg == nil {
		out := NewPlane(cur.W, cur.H)
		copy(out.Pix, cur.Pix)
		return out, nil
	}
	if !SameDimensions(bg, cur) {
		return nil, fmt.Errorf("dimension mismatch: %dx%d vs %dx%d: %w", bg.W, bg.H, cur.W, cur.H, apperr.ErrDimensionMismatch)
	}

	out := NewPlane(bg.W, bg.H)
	for i := range bg.Pix {
		v := (1-alpha)*float64(bg.Pix[i]) + alpha*float64(cur.Pix[i])
		out.Pix[i] = byte(math.Round(v))
	}
	return out, nil
}

// ToImage converts a plane into a standard library grayscale image, for
// callers that need to re-encode or composite it.
func (p *Plane) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.W, p.H))
	copy(img.Pix, p.Pix)
	return img
}

// EncodeJPEG re-encodes a plane back to JPEG bytes, the wire format
// every Detector variant's background parameter expects.
func EncodeJPEG(p *Plane) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, p.ToImage(), nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
