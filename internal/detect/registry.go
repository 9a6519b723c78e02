package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WispAyr/baywatch/internal/apperr"
)

// ModeSink receives a notification whenever the active mode changes.
type ModeSink interface {
	PublishModeChanged(mode Mode)
}

// Registry holds every configured detector variant and the process-wide
// selector choosing which one callers currently get from Active.
type Registry struct {
	mu      sync.RWMutex
	current Mode
	variants map[Mode]Detector
	sink    ModeSink
}

// NewRegistry wires the blob variant (always present) and, if baseURL is
// non-empty, the two external variants sharing one HTTP client against
// that URL. callTimeout bounds each external call (see SetTimeout; §5
// requires this bound to track the tick interval).
func NewRegistry(externalBaseURL string, sink ModeSink, callTimeout time.Duration) *Registry {
	r := &Registry{
		current:  ModeBlob,
		variants: map[Mode]Detector{ModeBlob: NewBlobDetector()},
		sink:     sink,
	}
	if externalBaseURL != "" {
		r.variants[ModeExternalYOLO] = NewExternalDetector(externalBaseURL, "yolo", ModeExternalYOLO, callTimeout)
		r.variants[ModeExternalSSD] = NewExternalDetector(externalBaseURL, "ssd", ModeExternalSSD, callTimeout)
	}
	return r
}

// SetTimeout retunes the per-call bound on every external variant,
// called whenever the scheduler's tick interval changes so
// external-detector calls stay bounded by it (spec §5).
func (r *Registry) SetTimeout(timeout time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.variants {
		if ext, ok := d.(*ExternalDetector); ok {
			ext.SetTimeout(timeout)
		}
	}
}

// Active returns the currently selected detector and its mode name.
func (r *Registry) Active() (Detector, Mode) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variants[r.current], r.current
}

// CurrentMode reports the selected mode without the detector handle.
func (r *Registry) CurrentMode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// externalAvailable checks the currently configured external backend's
// health, bounded to ~2s by ExternalDetector.Status.
func (r *Registry) externalAvailable(ctx context.Context) bool {
	r.mu.RLock()
	d, ok := r.variants[ModeExternalYOLO]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	ext, ok := d.(*ExternalDetector)
	if !ok {
		return false
	}
	return ext.Status(ctx)
}

// ExternalAvailable reports whether an external backend is configured
// and currently reachable.
func (r *Registry) ExternalAvailable(ctx context.Context) bool {
	return r.externalAvailable(ctx)
}

// SetMode switches the active variant. Selecting a non-blob mode
// requires the external backend to be reachable; otherwise
// BackendUnavailable is returned and the mode is left unchanged.
func (r *Registry) SetMode(ctx context.Context, mode Mode) error {
	if !ValidModes[mode] {
		return fmt.Errorf("%q: %w", mode, apperr.ErrUnknownMode)
	}

	if mode != ModeBlob {
		if _, ok := r.variants[mode]; !ok {
			return fmt.Errorf("%q: %w", mode, apperr.ErrBackendUnavailable)
		}
		if !r.externalAvailable(ctx) {
			return fmt.Errorf("%q: %w", mode, apperr.ErrBackendUnavailable)
		}
	}

	r.mu.Lock()
	r.current = mode
	r.mu.Unlock()

	if r.sink != nil {
		r.sink.PublishModeChanged(mode)
	}
	return nil
}

// ModeDescriptor describes one mode entry for the /detection/modes
// listing.
type ModeDescriptor struct {
	Mode        Mode   `json:"mode"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Available   bool   `json:"available"`
}

// Descriptors lists every known mode with its availability against the
// currently active selection.
func (r *Registry) Descriptors(ctx context.Context) []ModeDescriptor {
	current := r.CurrentMode()
	externalUp := r.externalAvailable(ctx)

	all := []ModeDescriptor{
		{Mode: ModeBlob, Name: "Background subtraction", Description: "Built-in frame-diff blob detector", Available: true},
		{Mode: ModeExternalYOLO, Name: "External YOLO", Description: "External YOLO-family model server", Available: externalUp},
		{Mode: ModeExternalSSD, Name: "External SSD", Description: "External SSD-family model server", Available: externalUp},
	}
	for i := range all {
		all[i].Active = all[i].Mode == current
	}
	return all
}
