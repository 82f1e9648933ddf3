package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/ads-bfuel/internal/db"
	"github.com/unklstewy/ads-bfuel/internal/pipeline"
	"github.com/unklstewy/ads-bfuel/pkg/adsb"
	"github.com/unklstewy/ads-bfuel/pkg/config"
	"github.com/unklstewy/ads-bfuel/pkg/logger"
	"github.com/unklstewy/ads-bfuel/pkg/perf"
	"github.com/unklstewy/ads-bfuel/pkg/trace"
)

// maxTraceBytes bounds uploaded trace files.
const maxTraceBytes = 32 << 20

// Server holds the HTTP router and its dependencies
type Server struct {
	router *chi.Mux
	rt     *pipeline.Runtime
	cfg    *config.Config
	log    *logger.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg *config.Config, rt *pipeline.Runtime, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		router: chi.NewRouter(),
		rt:     rt,
		cfg:    cfg,
		log:    log.Named("http"),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.rt.Metrics.Middleware)

	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.rt.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if secs := s.cfg.Server.RequestTimeoutSeconds; secs > 0 {
			r.Use(middleware.Timeout(time.Duration(secs) * time.Second))
		}
		r.Use(middleware.Compress(5))

		r.Get("/types", s.handleTypes)
		r.Post("/analyse", s.handleAnalyseUpload)
		r.Post("/aircraft/{icao}/analyse", s.handleAnalyse)

		// Stored results
		r.Get("/aircraft/{icao}/legs", s.handleLegs)
		r.Get("/runs/{runID}", s.handleRun)
		r.Get("/stats", s.handleStats)
	})
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "ok",
		"database": "disabled",
		"archive":  s.rt.Archive != nil,
	}
	code := http.StatusOK
	if s.rt.DB != nil {
		if db.HealthCheck(r.Context(), s.rt.DB) {
			status["database"] = "ok"
		} else {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, status)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"types": s.rt.Perf.Types(),
	})
}

func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	icao, err := adsb.NormaliseICAO(chi.URLParam(r, "icao"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		s.rt.Client.Invalidate(icao)
	}

	report, err := s.rt.Analyser.AnalyseICAO(r.Context(), icao)
	if err != nil {
		s.analysisError(w, icao, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAnalyseUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTraceBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	raw, err := adsb.ParseRawTrace(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.rt.Analyser.AnalyseRaw(r.Context(), raw)
	if err != nil {
		s.analysisError(w, "", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// analysisError maps analysis failures onto HTTP status codes.
func (s *Server) analysisError(w http.ResponseWriter, icao string, err error) {
	var (
		rateLimit *adsb.RateLimitError
		metadata  *adsb.MissingMetadataError
		width     *adsb.RowWidthError
		empty     *trace.EmptySeriesError
	)

	switch {
	case errors.Is(err, adsb.ErrTraceNotFound):
		respondError(w, http.StatusNotFound, "No trace for this aircraft")
	case errors.As(err, &rateLimit):
		if rateLimit.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimit.RetryAfter.Seconds())))
		}
		respondError(w, http.StatusServiceUnavailable, "Trace provider is rate limiting requests")
	case errors.Is(err, perf.ErrNotFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &metadata), errors.As(err, &width), errors.As(err, &empty):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error("analysis failed", logger.String("icao24", icao), logger.Error(err))
		respondError(w, http.StatusBadGateway, "Analysis failed")
	}
}

func (s *Server) handleLegs(w http.ResponseWriter, r *http.Request) {
	if s.rt.Legs == nil {
		respondError(w, http.StatusNotImplemented, "Database is disabled")
		return
	}
	icao, err := adsb.NormaliseICAO(chi.URLParam(r, "icao"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// ?all=true lists legs across runs, newest first
	if r.URL.Query().Get("all") == "true" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		legs, err := s.rt.Legs.ListLegs(r.Context(), icao, limit)
		if err != nil {
			s.log.Error("failed to list legs", logger.String("icao24", icao), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to get legs")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"icao24": icao,
			"legs":   legs,
		})
		return
	}

	run, err := s.rt.Legs.LatestRun(r.Context(), icao)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No analysis stored for this aircraft")
		return
	}
	if err != nil {
		s.log.Error("failed to get run", logger.String("icao24", icao), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get legs")
		return
	}
	s.respondRun(w, r, run)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.rt.Legs == nil {
		respondError(w, http.StatusNotImplemented, "Database is disabled")
		return
	}
	run, err := s.rt.Legs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	s.respondRun(w, r, run)
}

func (s *Server) respondRun(w http.ResponseWriter, r *http.Request, run *db.Run) {
	legs, err := s.rt.Legs.RunLegs(r.Context(), run.RunID)
	if err != nil {
		s.log.Error("failed to get legs", logger.String("run_id", run.RunID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get legs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run":  run,
		"legs": legs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.rt.DB == nil {
		respondError(w, http.StatusNotImplemented, "Database is disabled")
		return
	}
	st, err := s.rt.DB.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
