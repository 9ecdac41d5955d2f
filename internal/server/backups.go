package server

import (
	"fmt"
	"net/http"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/go-chi/chi/v5"
)

type backupResponse struct {
	Name    string `json:"name,omitempty"`
	Skipped bool   `json:"skipped"`
}

type cleanupResponse struct {
	Deleted []string `json:"deleted"`
	Kept    []string `json:"kept"`
	Failed  []string `json:"failed"`
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.deps.Backups.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if artifacts == nil {
		artifacts = []models.BackupArtifact{}
	}
	s.respondJSON(w, http.StatusOK, artifacts)
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Backups.Create(r.Context())
	if err != nil {
		s.publish(r, events.BackupFailed, map[string]string{"error": err.Error()})
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if result.Skipped {
		s.respondJSON(w, http.StatusOK, backupResponse{Skipped: true})
		return
	}

	s.publish(r, events.BackupCreated, map[string]string{
		"artifact":    result.Name,
		"description": "manual",
	})
	s.respondJSON(w, http.StatusCreated, backupResponse{Name: result.Name})
}

func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	artifacts, err := s.deps.Backups.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	found := false
	for _, a := range artifacts {
		if a.Name == name {
			found = true
			break
		}
	}
	if !found {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("backup %q not found", name))
		return
	}

	if !s.deps.Backups.Restore(r.Context(), name) {
		s.respondError(w, http.StatusInternalServerError, fmt.Errorf("backup %q could not be restored", name))
		return
	}

	s.publish(r, events.BackupRestored, map[string]string{"artifact": name})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cleanupBackups(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Backups.Cleanup(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cleanupResponse{
		Deleted: nonNil(result.Deleted),
		Kept:    nonNil(result.Kept),
		Failed:  nonNil(result.Failed),
	})
}

func (s *Server) publish(r *http.Request, t events.Type, data map[string]string) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(r.Context(), events.Event{Type: t, Data: data})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
