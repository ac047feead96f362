package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"videoconverter/services"
)

const multipartMemory = 32 << 20

// Converter starts a background conversion for a stored upload.
type Converter interface {
	Submit(jobID int64, inputPath string)
}

// StatusForgetter drops cached state for deleted jobs.
type StatusForgetter interface {
	Forget(ctx context.Context, id int64) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	UploadDir      string
	OutputDir      string
	PublicPrefix   string
	MaxUploadBytes int64
	// Cache and Health are optional.
	Cache  StatusForgetter
	Health Pinger
	Logger *slog.Logger
}

// Server exposes the job API and the converted file route.
type Server struct {
	store     services.JobStore
	converter Converter
	cache     StatusForgetter
	health    Pinger
	logger    *slog.Logger
	router    *chi.Mux

	uploadDir      string
	outputDir      string
	publicPrefix   string
	maxUploadBytes int64
}

func NewServer(store services.JobStore, converter Converter, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opts.PublicPrefix
	if prefix == "" {
		prefix = "/converted"
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 2 << 30
	}

	s := &Server{
		store:          store,
		converter:      converter,
		cache:          opts.Cache,
		health:         opts.Health,
		logger:         logger,
		router:         chi.NewRouter(),
		uploadDir:      opts.UploadDir,
		outputDir:      opts.OutputDir,
		publicPrefix:   prefix,
		maxUploadBytes: maxUpload,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.healthz)

	s.router.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/", s.createJob)
		r.Delete("/", s.deleteAllJobs)
		r.Get("/download-all", s.downloadAll)
		r.Get("/{id}", s.getJob)
		r.Delete("/{id}", s.deleteJob)
	})

	files := http.FileServer(http.Dir(s.outputDir))
	s.router.Handle(s.publicPrefix+"/*", http.StripPrefix(s.publicPrefix+"/", files))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode json", "error", err)
	}
}

func (s *Server) respondMessage(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, messageResponse{Message: message})
}
