package eventbus

import (
	"log/slog"

	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/events"
	"github.com/WispAyr/baywatch/internal/occupancy"
)

// Sink adapts a Bus to the occupancy.UpdateSink and detect.ModeSink
// interfaces, so those packages can fan state changes out without
// importing the bus directly.
type Sink struct {
	bus    *Bus
	logger *slog.Logger
}

// NewSink wraps bus for use as an occupancy/detect update sink.
func NewSink(bus *Bus) *Sink {
	return &Sink{bus: bus, logger: slog.Default().With("component", "eventbus_sink")}
}

// PublishOccupancyUpdate implements occupancy.UpdateSink.
func (s *Sink) PublishOccupancyUpdate(e occupancy.Entry) {
	if err := s.bus.Publish(SubjectOccupancyChanged, e); err != nil {
		s.logger.Warn("failed to publish occupancy update", "error", err)
	}
}

// PublishEvent implements occupancy.UpdateSink.
func (s *Sink) PublishEvent(ev *events.Event) {
	if ev == nil {
		return
	}
	if err := s.bus.Publish(SubjectEventLogged, ev); err != nil {
		s.logger.Warn("failed to publish event", "error", err)
	}
}

// PublishModeChanged implements detect.ModeSink.
func (s *Sink) PublishModeChanged(mode detect.Mode) {
	if err := s.bus.Publish(SubjectModeChanged, map[string]any{"mode": mode}); err != nil {
		s.logger.Warn("failed to publish mode change", "error", err)
	}
}
