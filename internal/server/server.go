// Package server exposes the retrieval engine and the published graph over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"factweave/internal/config"
	"factweave/internal/logger"
	"factweave/internal/retrieval"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// QueryEngine answers natural-language queries.
type QueryEngine interface {
	Answer(ctx context.Context, query string) (*retrieval.Answer, error)
}

// GraphReader serves fact neighborhoods for the UI.
type GraphReader interface {
	FactNeighborhood(ctx context.Context, factID int64) ([]map[string]any, error)
	Ping(ctx context.Context) error
}

// Server represents the HTTP server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	engine     QueryEngine
	graph      GraphReader
	config     config.Server
	log        *slog.Logger
	started    time.Time
}

// New creates a new HTTP server instance.
func New(engine QueryEngine, graph GraphReader, cfg config.Server) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		engine:  engine,
		graph:   graph,
		config:  cfg,
		log:     logger.Get(),
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.config.CORSEnabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Post("/query/natural", s.handleNaturalQuery)
	s.router.Get("/fact_graph/{id}", s.handleFactGraph)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the chi router instance (useful for testing).
func (s *Server) Router() *chi.Mux {
	return s.router
}

// queryRequest is the natural-language query payload.
type queryRequest struct {
	Query string `json:"query"`
}

// queryResponse is the ranked answer envelope.
type queryResponse struct {
	Success   bool                 `json:"success"`
	Query     string               `json:"query"`
	Analysis  string               `json:"analysis,omitempty"`
	Results   []resultItem         `json:"results"`
	Count     int                  `json:"count"`
	Timestamp string               `json:"timestamp"`
}

type resultItem struct {
	ID         int64   `json:"id"`
	Statement  string  `json:"statement"`
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
}

func (s *Server) handleNaturalQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	answer, err := s.engine.Answer(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidQuery) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("query failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}

	results := make([]resultItem, 0, len(answer.Results))
	for _, f := range answer.Results {
		results = append(results, resultItem{
			ID:         f.ID,
			Statement:  f.Statement,
			Subject:    f.Subject,
			Predicate:  f.Predicate,
			Object:     f.Object,
			Confidence: f.Confidence,
			Relevance:  f.Relevance,
		})
	}

	s.writeJSON(w, http.StatusOK, queryResponse{
		Success:   true,
		Query:     answer.Query,
		Analysis:  string(answer.Strategy),
		Results:   results,
		Count:     len(results),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFactGraph(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "fact id must be an integer")
		return
	}

	elements, err := s.graph.FactNeighborhood(r.Context(), id)
	if err != nil {
		s.log.Error("fact graph lookup failed", "fact_id", id, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	if elements == nil {
		elements = []map[string]any{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"elements": elements})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	graphStatus := "ok"
	if err := s.graph.Ping(r.Context()); err != nil {
		graphStatus = "unavailable"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"graph_store": graphStatus,
		"uptime":      time.Since(s.started).String(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
