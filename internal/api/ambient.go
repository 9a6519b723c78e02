package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/WispAyr/baywatch/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbErr := s.DB.Health(r.Context())

	status := "ok"
	if dbErr != nil {
		status = "degraded"
	}

	OK(w, map[string]any{
		"status":                      status,
		"service":                     "occupancyd",
		"timestamp":                   time.Now(),
		"detection_mode":              s.Detectors.CurrentMode(),
		"external_detector_available": s.Detectors.ExternalAvailable(r.Context()),
		"uptime_seconds":              time.Since(s.startedAt).Seconds(),
		"database":                    dbErr == nil,
		"ws_clients":                  s.Hub.ClientCount(),
	})
}

const defaultLogsRecentCount = 100

func (s *Server) handleLogsRecent(w http.ResponseWriter, r *http.Request) {
	n := defaultLogsRecentCount
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	OK(w, s.Logs.GetRecent(n))
}

// handleLogsStream streams log entries as they're appended, using
// server-sent events so a plain browser tab can follow them live.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Logs.Subscribe()
	defer s.Logs.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", logging.LogEntryToJSON(entry))
			flusher.Flush()
		}
	}
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	s.Config.Reload()
	OK(w, map[string]any{"reloaded": true})
}
