// Package server exposes the dashboard-facing HTTP/JSON API: read-only views
// over the store plus the synchronizer status and manual refresh trigger.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"PaperFolio/internal/observability"
	"PaperFolio/internal/query"
	"PaperFolio/internal/state"
	psync "PaperFolio/internal/sync"
)

// Refresher is the slice of the synchronizer the API needs.
type Refresher interface {
	Status() psync.Status
	RefreshPortfolio()
	RefreshHistory()
	RefreshPerformance()
}

// Config holds HTTP server parameters.
type Config struct {
	Addr           string
	AllowedOrigins []string // CORS; empty means allow all
}

// Server is the dashboard API facade.
type Server struct {
	cfg    Config
	store  *state.Store
	syncer Refresher
	health *observability.HealthChecker
	log    zerolog.Logger
}

func New(cfg Config, store *state.Store, syncer Refresher, health *observability.HealthChecker, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, store: store, syncer: syncer, health: health, log: log}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	if s.health != nil {
		r.HandleFunc("/healthz", s.health.LivenessHandler).Methods(http.MethodGet)
		r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods(http.MethodGet)
	}

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// ListenAndServe runs the API server until the listener fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http api listening")
	return srv.ListenAndServe()
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, http.StatusOK, query.NewPortfolioResponse(snap.Portfolio))
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, http.StatusOK, query.NewPositionResponses(snap.Positions))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, http.StatusOK, query.NewTradeResponses(snap.Trades))
}

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	s.writeJSON(w, http.StatusOK, query.NewPerformanceResponse(snap.Performance))
}

type statusResponse struct {
	State          string `json:"state"`
	IsConnected    bool   `json:"is_connected"`
	Error          string `json:"error,omitempty"`
	LastSyncedAtMs int64  `json:"last_synced_at_ms,omitempty"`
	AsOfMs         int64  `json:"as_of_ms,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.syncer.Status()
	resp := statusResponse{
		State:       st.State.String(),
		IsConnected: st.State == psync.StateConnected,
		Error:       st.Err,
	}
	if !st.LastSyncedAt.IsZero() {
		resp.LastSyncedAtMs = st.LastSyncedAt.UnixMilli()
	}
	if asOf := s.store.Snapshot().AsOf; !asOf.IsZero() {
		resp.AsOfMs = asOf.UnixMilli()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type refreshRequest struct {
	Scope string `json:"scope"` // portfolio | history | performance | all
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	req := refreshRequest{Scope: "all"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid refresh request")
			return
		}
	}

	switch req.Scope {
	case "portfolio":
		s.syncer.RefreshPortfolio()
	case "history":
		s.syncer.RefreshHistory()
	case "performance":
		s.syncer.RefreshPerformance()
	case "all", "":
		s.syncer.RefreshPortfolio()
		s.syncer.RefreshHistory()
		s.syncer.RefreshPerformance()
	default:
		s.writeError(w, http.StatusBadRequest, "unknown refresh scope: "+req.Scope)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
