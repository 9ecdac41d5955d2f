// Package server is the HTTP and WebSocket control surface of the console.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/fgeck/gameserver-console/internal/metrics"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/fgeck/gameserver-console/internal/services/registry"
	"github.com/fgeck/gameserver-console/internal/services/schedule"
	"github.com/fgeck/gameserver-console/internal/services/supervisor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Schedules is the schedule editing surface.
type Schedules interface {
	ListSchedules() []models.ScheduledEvent
	AddSchedule(event models.ScheduledEvent) (models.ScheduledEvent, error)
	UpdateSchedule(id string, event models.ScheduledEvent) (models.ScheduledEvent, error)
	DeleteSchedule(id string) error
	GetSchedule() (string, bool)
	SetSchedule(expr string) error
	EnableSchedule(enabled bool) error
	AddBackupSchedule(expr, description string) (models.ScheduledEvent, error)
}

// Scheduler reports on and pauses the timers.
type Scheduler interface {
	Status() []models.EventStatus
	Active() int
	SetSkip(skip bool)
	Skipping() bool
}

// Deps are the services the handlers call.
type Deps struct {
	Backups    backup.Service
	Schedules  Schedules
	Scheduler  Scheduler
	Supervisor supervisor.Service
	Bus        events.Publisher
	Hub        *Hub
}

// Server routes requests to the console services.
type Server struct {
	deps   Deps
	cfg    models.HTTPConfig
	logger zerolog.Logger
}

// New creates a server.
func New(logger zerolog.Logger, cfg models.HTTPConfig, deps Deps) *Server {
	return &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if s.cfg.Username != "" {
			r.Use(middleware.BasicAuth("gameserver-console", map[string]string{
				s.cfg.Username: s.cfg.Password,
			}))
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/backups", s.listBackups)
			r.Post("/backups", s.createBackup)
			r.Post("/backups/cleanup", s.cleanupBackups)
			r.Post("/backups/{name}/restore", s.restoreBackup)

			r.Get("/schedules", s.listSchedules)
			r.Post("/schedules", s.addSchedule)
			r.Put("/schedules/{id}", s.updateSchedule)
			r.Delete("/schedules/{id}", s.deleteSchedule)

			r.Get("/schedule", s.getSchedule)
			r.Put("/schedule", s.setSchedule)
			r.Put("/schedule/enabled", s.enableSchedule)
			r.Post("/schedule/backups", s.addBackupSchedule)

			r.Get("/scheduler/status", s.schedulerStatus)
			r.Put("/scheduler/skip", s.setSkip)

			r.Get("/server/state", s.serverState)
		})

		if s.deps.Hub != nil {
			r.Get("/ws", s.deps.Hub.ServeWS)
		}
		r.Handle("/metrics", metrics.Handler())
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	s.respondJSON(w, status, errorResponse{Error: err.Error()})
}

// respondServiceError maps service errors onto status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err)
	case errors.Is(err, registry.ErrDuplicateID):
		s.respondError(w, http.StatusConflict, err)
	case errors.Is(err, schedule.ErrInvalidSchedule):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
