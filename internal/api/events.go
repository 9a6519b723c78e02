package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/WispAyr/baywatch/internal/events"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := events.ListOptions{
		ZoneID:   q.Get("zone_id"),
		CameraID: q.Get("camera_id"),
		Kind:     events.Kind(q.Get("event_type")),
		Limit:    50,
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = t
		}
	}

	list, total, err := s.Events.List(r.Context(), opts)
	if err != nil {
		WriteError(w, err)
		return
	}

	perPage := opts.Limit
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := opts.Offset/perPage + 1
	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	JSONWithMeta(w, http.StatusOK, map[string]any{"events": list, "total": total}, &Meta{
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	})
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	stats, err := s.Events.GetStats(r.Context(), since)
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, stats)
}
