// Package server exposes the Medscribe HTTP API.
//
// The API covers one-shot transcript attribution (POST /v1/attribute),
// consultation session lifecycle (create, append turns, finish, delete),
// prescription drafting from a labeled session, full-text search over stored
// turns, and semantic similar-case lookup. Operational endpoints (/healthz,
// /readyz, /metrics) ride on the same mux.
//
// The store, LLM corrector, and embeddings provider are all optional:
// endpoints that need a missing dependency answer 503 rather than failing at
// startup, so a bare heuristic-only deployment still serves /v1/attribute.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arogyalabs/medscribe/internal/correct"
	"github.com/arogyalabs/medscribe/internal/health"
	"github.com/arogyalabs/medscribe/internal/observe"
	"github.com/arogyalabs/medscribe/internal/prescription"
	"github.com/arogyalabs/medscribe/pkg/consultstore"
	"github.com/arogyalabs/medscribe/pkg/provider/embeddings"
)

// defaultListLimit caps session listings when the caller does not set one.
const defaultListLimit = 50

// Config holds the dependencies for a [Server]. Only Extractor has a
// constructed default; every other nil field disables the endpoints that
// need it.
type Config struct {
	// Store persists consultations and serves search. Nil disables all
	// /v1/sessions and /v1/search endpoints.
	Store consultstore.Store

	// Corrector runs the LLM attribution pass when a request asks for it.
	// Nil means requests with llm_review fall back to the heuristic.
	Corrector *correct.Corrector

	// Extractor drafts prescriptions from labeled turns. When nil, a default
	// extractor without drug-name correction is used.
	Extractor *prescription.Extractor

	// Embedder produces vectors for similar-case indexing and lookup.
	// Nil disables /v1/sessions/similar and summary indexing on finish.
	Embedder embeddings.Provider

	// Metrics records request and pipeline telemetry. Nil uses the
	// process-wide default instruments.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. Nil installs a checker-less
	// handler (liveness only, readiness vacuously ok).
	Health *health.Handler
}

// Server is the Medscribe HTTP API. Create one with [New] and mount
// [Server.Routes] on an http.Server.
//
// The corrector and extractor sit behind atomic pointers so a formulary or
// attribution hot reload swaps them for in-flight traffic without a restart.
type Server struct {
	store     consultstore.Store
	corrector atomic.Pointer[correct.Corrector]
	extractor atomic.Pointer[prescription.Extractor]
	embedder  embeddings.Provider
	metrics   *observe.Metrics
	health    *health.Handler
}

// New assembles a Server from cfg, filling defaults for nil Extractor,
// Metrics, and Health.
func New(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		metrics:  cfg.Metrics,
		health:   cfg.Health,
	}
	s.corrector.Store(cfg.Corrector)
	if cfg.Extractor == nil {
		cfg.Extractor = prescription.NewExtractor(nil)
	}
	s.extractor.Store(cfg.Extractor)
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// SetExtractor swaps the prescription extractor, e.g. after a formulary
// reload. A nil extractor resets to one without drug-name correction.
func (s *Server) SetExtractor(e *prescription.Extractor) {
	if e == nil {
		e = prescription.NewExtractor(nil)
	}
	s.extractor.Store(e)
}

// SetCorrector swaps the LLM review pass. Nil disables it; requests asking
// for llm_review then fall back to the heuristic.
func (s *Server) SetCorrector(c *correct.Corrector) {
	s.corrector.Store(c)
}

// Routes builds the full request mux, wrapped in the tracing/metrics
// middleware. Literal routes ("/v1/sessions/similar") take precedence over
// the wildcard session routes per net/http pattern matching.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/attribute", s.handleAttribute)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/similar", s.handleSimilarSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", s.handleAppendTurns)
	mux.HandleFunc("POST /v1/sessions/{id}/finish", s.handleFinishSession)
	mux.HandleFunc("POST /v1/sessions/{id}/prescription", s.handlePrescription)

	mux.HandleFunc("GET /v1/search", s.handleSearchTurns)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// ─── Response helpers ────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON parses the request body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// requireStore answers 503 when no consultation store is configured.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "consultation store is not configured")
		return false
	}
	return true
}

// requireEmbedder answers 503 when no embeddings provider is configured.
func (s *Server) requireEmbedder(w http.ResponseWriter) bool {
	if s.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "embeddings provider is not configured")
		return false
	}
	return true
}
