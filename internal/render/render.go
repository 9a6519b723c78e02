// Package render draws zone polygons, blob boxes, and labels onto a
// camera's latest JPEG frame for the annotated snapshot endpoint.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/WispAyr/baywatch/internal/imaging"
)

// ZoneOverlay is one zone's polygon plus the live count to render.
type ZoneOverlay struct {
	Name    string
	Polygon imaging.Polygon
	Count   int
	Alarm   bool
}

// BlobOverlay is one detected blob's box and centroid to render.
type BlobOverlay struct {
	BBox     imaging.BoundingBox
	Centroid imaging.Point
}

var (
	colorGreen  = color.RGBA{0, 200, 0, 255}
	colorRed    = color.RGBA{220, 0, 0, 255}
	colorYellow = color.RGBA{230, 200, 0, 255}
	fillAlpha   = uint8(77) // ~30% of 255
)

// Quality is the JPEG re-encode quality used for annotated output.
const Quality = 85

// Frame overlays zones and blobs onto jpegData. If zones is empty, the
// raw JPEG is returned unchanged.
func Frame(jpegData []byte, zones []ZoneOverlay, blobs []BlobOverlay) ([]byte, error) {
	if len(zones) == 0 {
		return jpegData, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, z := range zones {
		c := colorGreen
		if z.Alarm {
			c = colorRed
		}
		fillPolygon(rgba, z.Polygon, c, fillAlpha)
		strokePolygon(rgba, z.Polygon, c, 2)

		if len(z.Polygon) > 0 {
			label := fmt.Sprintf("%s: %d", z.Name, z.Count)
			drawLabel(rgba, int(z.Polygon[0].X), int(z.Polygon[0].Y)-6, label, c)
		}
	}

	for _, b := range blobs {
		drawBox(rgba, b.BBox.X, b.BBox.Y, b.BBox.W, b.BBox.H, colorYellow, 2)
		drawDisk(rgba, int(b.Centroid.X), int(b.Centroid.Y), 4, colorRed)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fillPolygon blends c at alpha/255 opacity into every pixel inside
// polygon, using the same ray-casting rule as the zone mask.
func fillPolygon(img *image.RGBA, polygon imaging.Polygon, c color.RGBA, alpha uint8) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := imaging.Point{X: float64(x), Y: float64(y)}
			if !imaging.PointInPolygon(p, polygon) {
				continue
			}
			blend(img, x, y, c, alpha)
		}
	}
}

func blend(img *image.RGBA, x, y int, c color.RGBA, alpha uint8) {
	bg := img.RGBAAt(x, y)
	a := float64(alpha) / 255.0
	out := color.RGBA{
		R: uint8(float64(c.R)*a + float64(bg.R)*(1-a)),
		G: uint8(float64(c.G)*a + float64(bg.G)*(1-a)),
		B: uint8(float64(c.B)*a + float64(bg.B)*(1-a)),
		A: 255,
	}
	img.SetRGBA(x, y, out)
}

// strokePolygon draws each polygon edge as a thickness-px line.
func strokePolygon(img *image.RGBA, polygon imaging.Polygon, c color.RGBA, thickness int) {
	n := len(polygon)
	for i := 0; i < n; i++ {
		a := polygon[i]
		b := polygon[(i+1)%n]
		drawLine(img, int(a.X), int(a.Y), int(b.X), int(b.Y), c, thickness)
	}
}

// drawLine rasterizes a line segment via Bresenham's algorithm,
// widened by painting a (thickness x thickness) square at each step.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA, thickness int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		paintSquare(img, x0, y0, thickness, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func paintSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	bounds := img.Bounds()
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func drawDisk(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	bounds := img.Bounds()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			x, y := cx+dx, cy+dy
			if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawBox draws an unfilled rectangle outline, thickness px wide.
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for i := x; i < x+w; i++ {
			setIfIn(img, bounds, i, y+t, c)
			setIfIn(img, bounds, i, y+h-t, c)
		}
		for j := y; j < y+h; j++ {
			setIfIn(img, bounds, x+t, j, c)
			setIfIn(img, bounds, x+w-t, j, c)
		}
	}
}

func setIfIn(img *image.RGBA, bounds image.Rectangle, x, y int, c color.RGBA) {
	if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel paints a translucent background rectangle and draws text
// using the fixed 7x13 bitmap font.
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	bounds := img.Bounds()
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			setIfIn(img, bounds, x+dx, y+dy, bgColor)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
