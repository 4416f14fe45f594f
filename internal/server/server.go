// Package server exposes the HTTP surface: one endpoint per pipeline stage
// plus job submission and polling.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"callaudit/internal/analysis"
	"callaudit/internal/logger"
	"callaudit/internal/orchestrator"
	"callaudit/internal/reference"
	"callaudit/internal/restructure"
	"callaudit/internal/store"
	"callaudit/internal/transcribe"
	"callaudit/internal/voicelog"
)

type Server struct {
	router      *chi.Mux
	store       *store.Store
	ref         *reference.Library
	transcriber *transcribe.Service
	scheduler   *restructure.Scheduler
	detector    *voicelog.Detector
	analyzer    *analysis.Analyzer
	orch        *orchestrator.Orchestrator
	log         *logger.Logger
}

func New(
	st *store.Store,
	ref *reference.Library,
	transcriber *transcribe.Service,
	scheduler *restructure.Scheduler,
	detector *voicelog.Detector,
	analyzer *analysis.Analyzer,
	orch *orchestrator.Orchestrator,
	log *logger.Logger,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		store:       st,
		ref:         ref,
		transcriber: transcriber,
		scheduler:   scheduler,
		detector:    detector,
		analyzer:    analyzer,
		orch:        orch,
		log:         log.WithComponent("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.log.WithRequest(r).Info("health check")
		w.Write([]byte("ok"))
	})

	s.router.Post("/submit", s.handleSubmit)
	s.router.Post("/transcribe", s.handleTranscribe)
	s.router.Post("/restructure", s.handleRestructure)
	s.router.Post("/detect_voicelog", s.handleDetectVoicelog)
	s.router.Post("/analyze", s.handleAnalyze)
	s.router.Get("/jobs/{file_name}", s.handleGetJob)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("failed to write response")
	}
}

// writeError emits the shared error envelope {status:false, error}.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"status": false, "error": msg})
}

// statusForError maps the error taxonomy to HTTP statuses: validation 400,
// missing reference data 404, everything else 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, reference.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
