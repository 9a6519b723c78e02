package api

import (
	"encoding/json"
	"net/http"

	"github.com/WispAyr/baywatch/internal/scheduler"
)

type roundRobinStartRequest struct {
	Cameras    []string `json:"cameras,omitempty"`
	IntervalMS int      `json:"interval_ms,omitempty"`
}

const defaultRoundRobinIntervalMS = 5000

func (s *Server) handleRoundRobinStart(w http.ResponseWriter, r *http.Request) {
	var req roundRobinStartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}

	cameras := req.Cameras
	if len(cameras) == 0 {
		list, err := s.Snapshot.Cameras(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		cameras = list
	}

	interval := req.IntervalMS
	if interval <= 0 {
		interval = defaultRoundRobinIntervalMS
	}

	// Retune the snapshot/detector call timeouts to the new cadence
	// before starting so §5's "timeout <= tick interval" bound holds
	// from the very first tick of the reconfigured run.
	callTimeout := scheduler.TimeoutForInterval(interval)
	s.Snapshot.SetTimeout(callTimeout)
	s.Detectors.SetTimeout(callTimeout)

	s.Scheduler.Start(cameras, interval)
	OK(w, s.Scheduler.Status())
}

func (s *Server) handleRoundRobinStop(w http.ResponseWriter, r *http.Request) {
	s.Scheduler.Stop()
	OK(w, s.Scheduler.Status())
}

func (s *Server) handleRoundRobinStatus(w http.ResponseWriter, r *http.Request) {
	OK(w, s.Scheduler.Status())
}
