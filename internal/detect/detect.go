// Package detect implements the pluggable zone-analysis detector: a
// built-in background-subtraction blob variant and an external-model
// variant that POSTs frames to a sidecar service, with automatic
// fallback to blob detection on any transport failure.
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/WispAyr/baywatch/internal/apperr"
	"github.com/WispAyr/baywatch/internal/imaging"
)

// Mode names the active detector variant.
type Mode string

const (
	ModeBlob          Mode = "blob"
	ModeExternalYOLO  Mode = "external-yolo"
	ModeExternalSSD   Mode = "external-ssd"
)

// ValidModes is the set of recognized mode names.
var ValidModes = map[Mode]bool{
	ModeBlob:         true,
	ModeExternalYOLO: true,
	ModeExternalSSD:  true,
}

// Detection is one reported object, blob- or model-sourced.
type Detection struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	BBox       imaging.BoundingBox `json:"bbox"`
	Centroid   imaging.Point      `json:"centroid"`
	Area       int                `json:"area,omitempty"`
}

// Options configures one analyze call.
type Options struct {
	MinArea             int
	MaxArea             int
	ConfidenceThreshold float64
	AllowedLabels       []string
}

// DefaultConfidenceThreshold is applied when Options.ConfidenceThreshold
// is zero.
const DefaultConfidenceThreshold = 0.5

// Result is the normalized output of any detector variant.
type Result struct {
	Detections []Detection `json:"detections"`
	Count      int         `json:"count"`
	InferenceMS float64    `json:"inference_ms"`
	Mode        Mode       `json:"mode"`
}

// Detector analyzes one frame against a zone polygon.
type Detector interface {
	Analyze(ctx context.Context, frame, background []byte, polygon imaging.Polygon, opts Options) (Result, error)
}

func allowed(label string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, l := range allowList {
		if l == label {
			return true
		}
	}
	return false
}

func confidenceThreshold(opts Options) float64 {
	if opts.ConfidenceThreshold > 0 {
		return opts.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

// BlobDetector runs the background-subtraction pipeline described in
// §4.3: to_gray, diff-against-background (or mean-luma fallback),
// morphology clean, polygon mask, connected components.
type BlobDetector struct{}

// NewBlobDetector constructs the default blob variant.
func NewBlobDetector() *BlobDetector {
	return &BlobDetector{}
}

// Analyze implements Detector.
func (b *BlobDetector) Analyze(ctx context.Context, frame, background []byte, polygon imaging.Polygon, opts Options) (Result, error) {
	start := time.Now()

	frameGray, err := imaging.ToGray(frame)
	if err != nil {
		return Result{}, fmt.Errorf("decode frame: %w: %w", apperr.ErrInvalidImage, err)
	}

	var diff *imaging.Plane
	if background != nil {
		bgGray, err := imaging.ToGray(background)
		if err != nil {
			return Result{}, fmt.Errorf("decode background: %w: %w", apperr.ErrInvalidImage, err)
		}
		diff, err = imaging.AbsDiffThreshold(frameGray, bgGray, imaging.DefaultDiffThreshold)
		if err != nil {
			return Result{}, fmt.Errorf("%w", err)
		}
	} else {
		diff = imaging.ThresholdAgainstMean(frameGray, imaging.DefaultDiffThreshold)
	}

	clean := imaging.MorphologyClean(diff, imaging.DefaultMorphPasses)

	mask := imaging.PolygonMask(polygon, frameGray.W, frameGray.H)
	masked, err := imaging.ApplyMask(clean, mask)
	if err != nil {
		return Result{}, fmt.Errorf("%w", err)
	}

	minArea, maxArea := opts.MinArea, opts.MaxArea
	if minArea <= 0 {
		minArea = 1
	}
	if maxArea <= 0 {
		maxArea = frameGray.W * frameGray.H
	}

	blobs := imaging.ConnectedComponents(masked, minArea, maxArea)

	detections := make([]Detection, 0, len(blobs))
	for _, blob := range blobs {
		detections = append(detections, Detection{
			Label:      "object",
			Confidence: 1.0,
			BBox: imaging.BoundingBox{
				X: blob.BBox.X, Y: blob.BBox.Y, W: blob.BBox.W, H: blob.BBox.H,
			},
			Centroid: blob.Centroid,
			Area:     blob.Area,
		})
	}

	return Result{
		Detections:  detections,
		Count:       len(detections),
		InferenceMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Mode:        ModeBlob,
	}, nil
}

// externalRawBox matches either [x,y,w,h] or {x,y,width,height}.
type externalRawBox struct {
	array []float64
	X, Y, Width, Height float64
	isObject bool
}

func (b *externalRawBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		b.array = arr
		return nil
	}
	var obj struct {
		X, Y, Width, Height float64
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.X, b.Y, b.Width, b.Height = obj.X, obj.Y, obj.Width, obj.Height
	b.isObject = true
	return nil
}

func (b externalRawBox) toBBox() imaging.BoundingBox {
	if b.isObject {
		return imaging.BoundingBox{X: int(b.X), Y: int(b.Y), W: int(b.Width), H: int(b.Height)}
	}
	if len(b.array) == 4 {
		return imaging.BoundingBox{X: int(b.array[0]), Y: int(b.array[1]), W: int(b.array[2]), H: int(b.array[3])}
	}
	return imaging.BoundingBox{}
}

type externalDetection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	BBox       externalRawBox  `json:"bbox"`
}

type externalResponse struct {
	Detections  []externalDetection `json:"detections"`
	Objects     []externalDetection `json:"objects"`
	InferenceMS *float64            `json:"inference_ms"`
	Error       string              `json:"error"`
}

// ExternalDetector POSTs frames to a sidecar model-serving process and
// falls back to blob detection on any transport, HTTP, or parse
// failure.
type ExternalDetector struct {
	BaseURL string
	Model   string
	Mode    Mode
	Client  *http.Client
	Fallback *BlobDetector
	Logger   *slog.Logger

	timeoutNanos atomic.Int64
}

// DefaultDetectorTimeout is used until a scheduler interval is known to
// derive a tighter bound from (see SetTimeout).
const DefaultDetectorTimeout = 5 * time.Second

// NewExternalDetector constructs an external-model detector variant
// reporting the given mode (ModeExternalYOLO or ModeExternalSSD) on a
// successful call, with its per-call timeout bounded by timeout (see
// SetTimeout; §5 requires this bound to track the tick interval).
func NewExternalDetector(baseURL, model string, mode Mode, timeout time.Duration) *ExternalDetector {
	d := &ExternalDetector{
		BaseURL:  baseURL,
		Model:    model,
		Mode:     mode,
		Client:   &http.Client{},
		Fallback: NewBlobDetector(),
		Logger:   slog.Default().With("component", "external_detector"),
	}
	d.SetTimeout(timeout)
	return d
}

// SetTimeout retunes the per-call bound, safe to call concurrently with
// in-flight requests. Called whenever the scheduler's tick interval
// changes so external-detector calls stay bounded by it (spec §5).
func (e *ExternalDetector) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	e.timeoutNanos.Store(int64(timeout))
}

func (e *ExternalDetector) timeout() time.Duration {
	d := time.Duration(e.timeoutNanos.Load())
	if d <= 0 {
		return DefaultDetectorTimeout
	}
	return d
}

type analyzeRequest struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

// Analyze implements Detector.
func (e *ExternalDetector) Analyze(ctx context.Context, frame, background []byte, polygon imaging.Polygon, opts Options) (Result, error) {
	result, err := e.tryExternal(ctx, frame, polygon, opts)
	if err == nil {
		return result, nil
	}

	e.Logger.Warn("external detector call failed, falling back to blob", "error", err)
	return e.Fallback.Analyze(ctx, frame, nil, polygon, opts)
}

func (e *ExternalDetector) tryExternal(ctx context.Context, frame []byte, polygon imaging.Polygon, opts Options) (Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	payload, err := json.Marshal(analyzeRequest{
		Image: base64.StdEncoding.EncodeToString(frame),
		Model: e.Model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/analyze/base64", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", apperr.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", apperr.ErrBackendUnavailable, resp.StatusCode)
	}

	var parsed externalResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return Result{}, fmt.Errorf("%w: %s", apperr.ErrBackendUnavailable, parsed.Error)
	}

	raw := parsed.Detections
	if len(raw) == 0 {
		raw = parsed.Objects
	}

	threshold := confidenceThreshold(opts)
	detections := make([]Detection, 0, len(raw))
	for _, d := range raw {
		bbox := d.BBox.toBBox()
		centerX := float64(bbox.X) + float64(bbox.W)/2
		centerY := float64(bbox.Y) + float64(bbox.H)/2

		if !imaging.PointInPolygon(imaging.Point{X: centerX, Y: centerY}, polygon) {
			continue
		}
		if !allowed(d.Label, opts.AllowedLabels) {
			continue
		}
		if d.Confidence < threshold {
			continue
		}

		detections = append(detections, Detection{
			Label:      d.Label,
			Confidence: d.Confidence,
			BBox:       bbox,
			Centroid:   imaging.Point{X: centerX, Y: centerY},
		})
	}

	inferenceMS := float64(time.Since(start).Microseconds()) / 1000.0
	if parsed.InferenceMS != nil {
		inferenceMS = *parsed.InferenceMS
	}

	return Result{
		Detections:  detections,
		Count:       len(detections),
		InferenceMS: inferenceMS,
		Mode:        e.Mode,
	}, nil
}

// Status probes the external detector's health endpoint, bounded to 2s.
func (e *ExternalDetector) Status(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Available
}
