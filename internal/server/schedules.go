package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/go-chi/chi/v5"
)

// scheduleDTO is the wire form of a scheduled event.
type scheduleDTO struct {
	Name    string   `json:"name"`
	ID      string   `json:"id,omitempty"`
	Type    string   `json:"type"`
	Cron    string   `json:"cron,omitempty"`
	Params  []string `json:"params,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

func toDTO(e models.ScheduledEvent) scheduleDTO {
	enabled := e.Enabled
	return scheduleDTO{
		Name:    e.Name,
		ID:      e.EffectiveID(),
		Type:    string(e.Type),
		Cron:    e.Cron,
		Params:  e.Params,
		Enabled: &enabled,
	}
}

func (d scheduleDTO) toModel() models.ScheduledEvent {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return models.ScheduledEvent{
		Name:    d.Name,
		ID:      d.ID,
		Type:    models.TaskType(d.Type),
		Cron:    d.Cron,
		Params:  d.Params,
		Enabled: enabled,
	}
}

type backupScheduleResponse struct {
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

type setScheduleRequest struct {
	Cron string `json:"cron"`
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

type addBackupScheduleRequest struct {
	Cron        string `json:"cron"`
	Description string `json:"description,omitempty"`
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	list := s.deps.Schedules.ListSchedules()
	out := make([]scheduleDTO, 0, len(list))
	for _, e := range list {
		out = append(out, toDTO(e))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) addSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleDTO
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Name == "" && req.ID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("name or id is required"))
		return
	}

	added, err := s.deps.Schedules.AddSchedule(req.toModel())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toDTO(added))
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleDTO
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	updated, err := s.deps.Schedules.UpdateSchedule(chi.URLParam(r, "id"), req.toModel())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toDTO(updated))
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Schedules.DeleteSchedule(chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSchedule(w http.ResponseWriter, _ *http.Request) {
	expr, enabled := s.deps.Schedules.GetSchedule()
	s.respondJSON(w, http.StatusOK, backupScheduleResponse{Cron: expr, Enabled: enabled})
}

func (s *Server) setSchedule(w http.ResponseWriter, r *http.Request) {
	var req setScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.deps.Schedules.SetSchedule(req.Cron); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.getSchedule(w, r)
}

func (s *Server) enableSchedule(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.deps.Schedules.EnableSchedule(req.Enabled); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.getSchedule(w, r)
}

func (s *Server) addBackupSchedule(w http.ResponseWriter, r *http.Request) {
	var req addBackupScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	added, err := s.deps.Schedules.AddBackupSchedule(req.Cron, req.Description)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toDTO(added))
}
