package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/WispAyr/baywatch/internal/apperr"
	"github.com/WispAyr/baywatch/internal/detect"
	"github.com/WispAyr/baywatch/internal/imaging"
	"github.com/WispAyr/baywatch/internal/render"
	"github.com/WispAyr/baywatch/internal/zones"
)

type analyzeRequest struct {
	Image    string   `json:"image"`
	ZoneIDs  []string `json:"zone_ids,omitempty"`
	CameraID string   `json:"camera_id,omitempty"`
}

type analyzeStreamRequest struct {
	StreamURL string   `json:"stream_url"`
	CameraID  string   `json:"camera_id,omitempty"`
	ZoneIDs   []string `json:"zone_ids,omitempty"`
}

type zoneResult struct {
	ZoneID   string            `json:"zone_id"`
	ZoneName string            `json:"zone_name"`
	Count    int                `json:"count"`
	Blobs    []detect.Detection `json:"blobs"`
	Alarm    bool              `json:"alarm"`
}

func (s *Server) resolveZones(ctx context.Context, cameraID string, zoneIDs []string) ([]*zones.Zone, error) {
	if len(zoneIDs) > 0 {
		out := make([]*zones.Zone, 0, len(zoneIDs))
		for _, id := range zoneIDs {
			z, err := s.Zones.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			out = append(out, z)
		}
		return out, nil
	}
	if cameraID != "" {
		return s.Zones.ZonesForCamera(ctx, cameraID)
	}
	return s.Zones.List(ctx, "")
}

func (s *Server) analyzeFrame(ctx context.Context, frame []byte, cameraID string, zoneIDs []string) ([]zoneResult, error) {
	targetZones, err := s.resolveZones(ctx, cameraID, zoneIDs)
	if err != nil {
		return nil, err
	}

	detector, mode := s.Detectors.Active()
	results := make([]zoneResult, 0, len(targetZones))

	for _, z := range targetZones {
		zoneCameraID := cameraID
		if zoneCameraID == "" {
			zoneCameraID = z.CameraID
		}

		var bgJPEG []byte
		if plane, err := s.Zones.GetBackground(ctx, zoneCameraID); err == nil {
			bgJPEG, _ = imaging.EncodeJPEG(plane)
		}

		result, err := detector.Analyze(ctx, frame, bgJPEG, z.Polygon, detect.Options{
			MinArea: z.MinArea,
			MaxArea: z.MaxArea,
		})
		if err != nil {
			return nil, err
		}

		if err := s.Occupancy.Write(ctx, z.ID, z.Name, zoneCameraID, result.Count, result.Detections, z.AlarmThreshold); err != nil {
			s.logger.Warn("occupancy write failed", "zone_id", z.ID, "error", err)
		}

		entry, _ := s.Occupancy.Get(z.ID)
		results = append(results, zoneResult{
			ZoneID:   z.ID,
			ZoneName: z.Name,
			Count:    result.Count,
			Blobs:    result.Detections,
			Alarm:    entry.Alarm,
		})
	}

	s.logger.Debug("analyzed frame", "mode", mode, "zones", len(results))
	return results, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var frame []byte
	var cameraID string
	var zoneIDs []string

	if contentType == "application/json" || contentType == "" {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			BadRequest(w, "image must be valid base64")
			return
		}
		frame = data
		cameraID = req.CameraID
		zoneIDs = req.ZoneIDs
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			BadRequest(w, "failed to read request body")
			return
		}
		frame = data
		cameraID = r.URL.Query().Get("camera_id")
	}

	if len(frame) == 0 {
		WriteError(w, apperr.ErrInvalidImage)
		return
	}

	results, err := s.analyzeFrame(r.Context(), frame, cameraID, zoneIDs)
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, map[string]any{"results": results})
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	var req analyzeStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.StreamURL == "" {
		BadRequest(w, "stream_url is required")
		return
	}

	frame, err := s.Snapshot.FetchURL(r.Context(), req.StreamURL)
	if err != nil {
		WriteError(w, err)
		return
	}

	results, err := s.analyzeFrame(r.Context(), frame, req.CameraID, req.ZoneIDs)
	if err != nil {
		WriteError(w, err)
		return
	}
	OK(w, map[string]any{"results": results})
}

func (s *Server) handleSetBackground(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var frame []byte
	var cameraID string

	if contentType == "application/json" || contentType == "" {
		var req struct {
			Image    string `json:"image"`
			CameraID string `json:"camera_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			BadRequest(w, "image must be valid base64")
			return
		}
		frame = data
		cameraID = req.CameraID
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			BadRequest(w, "failed to read request body")
			return
		}
		frame = data
		cameraID = r.URL.Query().Get("camera_id")
	}

	if cameraID == "" {
		BadRequest(w, "camera_id is required")
		return
	}

	plane, err := imaging.ToGray(frame)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := s.Zones.SaveBackground(r.Context(), cameraID, plane); err != nil {
		WriteError(w, err)
		return
	}

	OK(w, map[string]any{"success": true, "camera_id": cameraID})
}

func (s *Server) handleCaptureAllBackgrounds(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.Snapshot.Cameras(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	type captureResult struct {
		CameraID string `json:"camera_id"`
		Success  bool   `json:"success"`
		Error    string `json:"error,omitempty"`
	}

	results := make([]captureResult, 0, len(cameras))
	for _, camID := range cameras {
		frame, err := s.Snapshot.Frame(r.Context(), camID)
		if err != nil {
			results = append(results, captureResult{CameraID: camID, Error: err.Error()})
			continue
		}
		plane, err := imaging.ToGray(frame)
		if err != nil {
			results = append(results, captureResult{CameraID: camID, Error: err.Error()})
			continue
		}
		if err := s.Zones.SaveBackground(r.Context(), camID, plane); err != nil {
			results = append(results, captureResult{CameraID: camID, Error: err.Error()})
			continue
		}
		results = append(results, captureResult{CameraID: camID, Success: true})
	}

	OK(w, map[string]any{"results": results})
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	OK(w, s.Occupancy.All())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "camera_id")
	if err := ValidateCameraID(cameraID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	raw, err := s.Snapshot.Frame(r.Context(), cameraID)
	if err != nil {
		WriteError(w, err)
		return
	}

	zoneList, err := s.Zones.ZonesForCamera(r.Context(), cameraID)
	if err != nil {
		WriteError(w, err)
		return
	}

	overlays := make([]render.ZoneOverlay, 0, len(zoneList))
	var blobs []render.BlobOverlay
	for _, z := range zoneList {
		entry, _ := s.Occupancy.Get(z.ID)
		overlays = append(overlays, render.ZoneOverlay{
			Name:    z.Name,
			Polygon: z.Polygon,
			Count:   entry.Count,
			Alarm:   entry.Alarm,
		})
		for _, b := range entry.Blobs {
			blobs = append(blobs, render.BlobOverlay{BBox: b.BBox, Centroid: b.Centroid})
		}
	}

	out, err := render.Frame(raw, overlays, blobs)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
