package server

import (
	"fmt"
	"net/http"

	"github.com/fgeck/gameserver-console/internal/models"
)

type schedulerStatusResponse struct {
	Active   int                  `json:"active"`
	Skipping bool                 `json:"skipping"`
	Events   []models.EventStatus `json:"events"`
}

type skipRequest struct {
	Skip bool `json:"skip"`
}

type serverStateResponse struct {
	State models.ServerState `json:"state"`
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	statuses := s.deps.Scheduler.Status()
	if statuses == nil {
		statuses = []models.EventStatus{}
	}
	s.respondJSON(w, http.StatusOK, schedulerStatusResponse{
		Active:   s.deps.Scheduler.Active(),
		Skipping: s.deps.Scheduler.Skipping(),
		Events:   statuses,
	})
}

func (s *Server) setSkip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	s.deps.Scheduler.SetSkip(req.Skip)
	s.logger.Info().Bool("skip", req.Skip).Msg("skip flag changed")
	s.schedulerStatus(w, r)
}

func (s *Server) serverState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, serverStateResponse{State: s.deps.Supervisor.State(r.Context())})
}
