// Command occupancyd is the zone-occupancy monitor's entry point: it
// loads configuration, opens the row store, wires the detector
// registry, scheduler, and WebSocket hub, and serves the admin/query
// HTTP surface until signaled to stop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WispAyr/baywatch/internal/api"
	"github.com/WispAyr/baywatch/internal/config"
	"github.com/WispAyr/baywatch/internal/database"
	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/events"
	"github.com/WispAyr/baywatch/internal/eventbus"
	"github.com/WispAyr/baywatch/internal/imaging"
	"github.com/WispAyr/baywatch/internal/logging"
	"github.com/WispAyr/baywatch/internal/occupancy"
	"github.com/WispAyr/baywatch/internal/scheduler"
	"github.com/WispAyr/baywatch/internal/snapshot"
	"github.com/WispAyr/baywatch/internal/zones"
)

const defaultConfigPath = "./config.yaml"

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", defaultConfigPath), "path to config.yaml")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logBuffer := logging.GetLogBuffer()
	handler := logging.NewStreamHandler(logBuffer, os.Stdout, logLevel)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Watch(); err != nil {
		slog.Warn("config file watch disabled", "error", err)
	}

	dbCfg := database.DefaultConfig(cfg.Data.Dir)
	db, err := database.Open(dbCfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := database.NewMigrator(db)
	if err := migrator.Run(context.Background()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	bus, err := eventbus.New(eventbus.Config{}, logger)
	if err != nil {
		slog.Error("failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()
	sink := eventbus.NewSink(bus)

	callTimeout := scheduler.TimeoutForInterval(cfg.Scheduler.IntervalMS)

	zoneSvc := zones.NewService(db)
	evLogger := events.NewLogger(db, nil)
	occState := occupancy.NewState(evLogger, sink)
	detectors := detect.NewRegistry(cfg.Detector.BaseURL, sink, callTimeout)
	snap := snapshot.NewClient(cfg.Snapshot.BaseURL, callTimeout)

	hub := api.NewHub(func() api.Message {
		entries := occState.All()
		zoneStates := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			zoneStates = append(zoneStates, map[string]any{
				"zone_id":      e.ZoneID,
				"zone_name":    e.ZoneName,
				"count":        e.Count,
				"last_updated": e.Timestamp,
			})
		}
		return api.Message{Type: api.MessageTypeInitialState, Data: map[string]any{"zones": zoneStates}}
	})
	go hub.Run()
	if err := api.SubscribeBus(hub, bus); err != nil {
		slog.Error("failed to subscribe websocket hub to event bus", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(func(ctx context.Context, camera string) {
		runTick(ctx, logger, snap, zoneSvc, detectors, occState, camera)
	})

	if defaults := cfg.SchedulerSnapshot(); len(defaults.Cameras) > 0 {
		sched.Start(defaults.Cameras, defaults.IntervalMS)
	}

	srv := api.NewServer(cfg, db, zoneSvc, occState, evLogger, detectors, sched, snap, bus, hub)
	router := srv.Routes()

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "address", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("stopped")
}

// runTick runs one scheduler visit: fetch the camera's frame once and
// analyze it against every zone configured for that camera.
func runTick(ctx context.Context, logger *slog.Logger, snap *snapshot.Client, zoneSvc *zones.Service,
	detectors *detect.Registry, occState *occupancy.State, camera string) {

	frame, err := snap.Frame(ctx, camera)
	if err != nil {
		logger.Warn("tick: snapshot fetch failed", "camera", camera, "error", err)
		return
	}

	zoneList, err := zoneSvc.ZonesForCameraExact(ctx, camera)
	if err != nil {
		logger.Warn("tick: zone lookup failed", "camera", camera, "error", err)
		return
	}

	detector, _ := detectors.Active()

	for _, z := range zoneList {
		var background []byte
		if plane, err := zoneSvc.GetBackground(ctx, camera); err == nil {
			background, _ = imaging.EncodeJPEG(plane)
		}

		result, err := detector.Analyze(ctx, frame, background, z.Polygon, detect.Options{
			MinArea: z.MinArea,
			MaxArea: z.MaxArea,
		})
		if err != nil {
			logger.Warn("tick: analyze failed", "camera", camera, "zone_id", z.ID, "error", err)
			continue
		}

		if err := occState.Write(ctx, z.ID, z.Name, camera, result.Count, result.Detections, z.AlarmThreshold); err != nil {
			logger.Warn("tick: occupancy write failed", "zone_id", z.ID, "error", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
