package api

import "net/http"

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.Snapshot.Cameras(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, map[string]any{"cameras": cameras})
}
