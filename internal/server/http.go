// Package server is the HTTP/JSON façade over the query service, plus the
// health endpoints.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"CollateralVault/internal/observability"
	"CollateralVault/internal/query"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Server serves the read API. All responses are JSON.
type Server struct {
	query   *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(q *query.Service, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{query: q, health: health, metrics: metrics, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vault/{owner}", s.instrument("vault", s.handleVault))
	mux.HandleFunc("GET /api/vault/{owner}/transactions", s.instrument("transactions", s.handleTransactions))
	mux.HandleFunc("GET /api/vaults", s.instrument("vaults", s.handleVaults))
	mux.HandleFunc("GET /api/tvl", s.instrument("tvl", s.handleTVL))
	mux.HandleFunc("GET /healthz", s.health.LivenessHandler)
	mux.HandleFunc("GET /readyz", s.health.ReadinessHandler)
	return mux
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	v, err := s.query.VaultByOwner(r.Context(), owner)
	if errors.Is(err, query.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleVaults(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageLimit)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	vaults, err := s.query.Vaults(r.Context(), limit, offset)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if vaults == nil {
		vaults = []query.VaultView{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"vaults": vaults})
}

func (s *Server) handleTVL(w http.ResponseWriter, r *http.Request) {
	view, err := s.query.TVL(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	txs, err := s.query.Transactions(r.Context(), owner, limit)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if txs == nil {
		txs = []query.TransactionView{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
