package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/WispAyr/baywatch/internal/config"
	"github.com/WispAyr/baywatch/internal/database"
	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/events"
	"github.com/WispAyr/baywatch/internal/eventbus"
	"github.com/WispAyr/baywatch/internal/logging"
	"github.com/WispAyr/baywatch/internal/occupancy"
	"github.com/WispAyr/baywatch/internal/scheduler"
	"github.com/WispAyr/baywatch/internal/snapshot"
	"github.com/WispAyr/baywatch/internal/zones"
)

// Server holds every dependency the admin/query HTTP surface needs and
// builds the chi router wiring them to routes.
type Server struct {
	Config     *config.Config
	DB         *database.DB
	Zones      *zones.Service
	Occupancy  *occupancy.State
	Events     *events.Logger
	Detectors  *detect.Registry
	Scheduler  *scheduler.Scheduler
	Snapshot   *snapshot.Client
	Bus        *eventbus.Bus
	Hub        *Hub
	Logs       *logging.RingBuffer
	startedAt  time.Time
	logger     *slog.Logger
}

// NewServer wires a Server from its component dependencies.
func NewServer(cfg *config.Config, db *database.DB, zoneSvc *zones.Service, occ *occupancy.State,
	evLogger *events.Logger, detectors *detect.Registry, sched *scheduler.Scheduler,
	snap *snapshot.Client, bus *eventbus.Bus, hub *Hub) *Server {
	return &Server{
		Config:    cfg,
		DB:        db,
		Zones:     zoneSvc,
		Occupancy: occ,
		Events:    evLogger,
		Detectors: detectors,
		Scheduler: sched,
		Snapshot:  snap,
		Bus:       bus,
		Hub:       hub,
		Logs:      logging.GetLogBuffer(),
		startedAt: time.Now(),
		logger:    slog.Default().With("component", "api"),
	}
}

// Routes builds the full admin/query HTTP surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/cameras", s.handleCameras)
	r.Get("/ws", s.Hub.HandleWebSocket)

	r.Route("/detection", func(r chi.Router) {
		r.Get("/modes", s.handleDetectionModes)
		r.Get("/mode", s.handleGetDetectionMode)
		r.Post("/mode", s.handleSetDetectionMode)
	})

	r.Route("/zones", func(r chi.Router) {
		r.Get("/", s.handleListZones)
		r.Post("/", s.handleCreateZone)
		r.Get("/{id}", s.handleGetZone)
		r.Patch("/{id}", s.handleUpdateZone)
		r.Delete("/{id}", s.handleDeleteZone)
		r.Get("/{id}/count", s.handleZoneCount)
		r.Get("/{id}/history", s.handleZoneHistory)
	})

	r.Post("/analyze", s.handleAnalyze)
	r.Post("/analyze-stream", s.handleAnalyzeStream)
	r.Post("/background", s.handleSetBackground)
	r.Post("/backgrounds/capture-all", s.handleCaptureAllBackgrounds)
	r.Get("/occupancy", s.handleOccupancy)
	r.Get("/frame/{camera_id}", s.handleFrame)

	r.Get("/events", s.handleListEvents)
	r.Get("/events/stats", s.handleEventStats)

	r.Route("/round-robin", func(r chi.Router) {
		r.Post("/start", s.handleRoundRobinStart)
		r.Post("/stop", s.handleRoundRobinStop)
		r.Get("/status", s.handleRoundRobinStatus)
	})

	r.Get("/logs/recent", s.handleLogsRecent)
	r.Get("/logs/stream", s.handleLogsStream)
	r.Post("/config/reload", s.handleConfigReload)

	return r
}

func (s *Server) publishZoneChange(kind, zoneID string, zone interface{}) {
	if s.Bus == nil {
		return
	}
	if err := s.Bus.Publish(eventbus.SubjectZoneChanged, ZoneChange{Kind: kind, ZoneID: zoneID, Zone: zone}); err != nil {
		s.logger.Warn("failed to publish zone change", "error", err)
	}
}
