package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/WispAyr/baywatch/internal/events"
	"github.com/WispAyr/baywatch/internal/zones"
)

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")

	list, err := s.Zones.List(r.Context(), cameraID)
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, list)
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var in zones.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if errs := NewZoneValidator().Validate(in); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	zone, err := s.Zones.Create(r.Context(), in)
	if err != nil {
		WriteError(w, err)
		return
	}

	s.publishZoneChange("created", zone.ID, zone)
	Created(w, zone)
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	zone, err := s.Zones.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, zone)
}

func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch zones.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if errs := NewZoneValidator().ValidatePatch(patch); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	zone, err := s.Zones.Update(r.Context(), id, patch)
	if err != nil {
		WriteError(w, err)
		return
	}

	s.publishZoneChange("updated", zone.ID, zone)
	OK(w, zone)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := s.Zones.Delete(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if !removed {
		NotFound(w, "zone not found")
		return
	}

	s.Occupancy.Remove(id)
	s.publishZoneChange("deleted", id, nil)
	NoContent(w)
}

func (s *Server) handleZoneCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.Zones.Get(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}

	entry, ok := s.Occupancy.Get(id)
	if !ok {
		OK(w, map[string]any{"zone_id": id, "count": 0, "alarm": false})
		return
	}
	OK(w, map[string]any{
		"zone_id":   entry.ZoneID,
		"count":     entry.Count,
		"alarm":     entry.Alarm,
		"timestamp": entry.Timestamp,
	})
}

func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.Zones.Get(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	list, total, err := s.Events.List(r.Context(), events.ListOptions{ZoneID: id, Limit: limit})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSONWithMeta(w, http.StatusOK, list, &Meta{Total: total})
}
