package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/WispAyr/baywatch/internal/apperr"
	"github.com/WispAyr/baywatch/internal/detect"
)

func (s *Server) handleDetectionModes(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"current_mode":                 s.Detectors.CurrentMode(),
		"external_detector_available": s.Detectors.ExternalAvailable(r.Context()),
		"modes":                        s.Detectors.Descriptors(r.Context()),
	})
}

func (s *Server) handleGetDetectionMode(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{"mode": s.Detectors.CurrentMode()})
}

func (s *Server) handleSetDetectionMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode detect.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := s.Detectors.SetMode(r.Context(), req.Mode); err != nil {
		// An unreachable external backend is rejected like an unknown
		// mode: 400, not the 503 WriteError uses for BackendUnavailable.
		if errors.Is(err, apperr.ErrBackendUnavailable) {
			BadRequest(w, err.Error())
			return
		}
		WriteError(w, err)
		return
	}

	OK(w, map[string]any{"mode": s.Detectors.CurrentMode()})
}
