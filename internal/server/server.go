package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/pipeline"
	"github.com/invoiceworks/invoice-converter/internal/progress"
	"github.com/invoiceworks/invoice-converter/internal/repository"
)

// Server exposes the job API: uploads start a pipeline run, progress streams
// over websocket, and the finished workbook is fetched per job.
type Server struct {
	cfg    *common.Config
	logger *slog.Logger
	jobs   repository.JobRepository
	files  repository.FileRepository
	runner *pipeline.Runner
	hub    *progress.Hub

	// reports holds finished workbooks by job ID string.
	reports sync.Map
}

func New(cfg *common.Config, jobs repository.JobRepository, files repository.FileRepository, runner *pipeline.Runner, hub *progress.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		jobs:   jobs,
		files:  files,
		runner: runner,
		hub:    hub,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Get("/jobs/{jobID}/report", s.handleGetReport)
	r.Get("/progress/{jobID}", s.handleProgress)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("http.response.encode_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal error"

	var appErr *common.AppError
	switch {
	case errors.Is(err, common.ErrNotFound):
		code = http.StatusNotFound
		msg = "not found"
	case errors.Is(err, common.ErrInvalidInput):
		code = http.StatusBadRequest
		msg = err.Error()
	}
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	s.writeJSON(w, code, map[string]string{"error": msg})
}
