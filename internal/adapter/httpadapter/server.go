// Package httpadapter exposes the operational HTTP surface: health,
// readiness, metrics, working-set stats, and the manual refresh trigger.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greyledger/sitrep/internal/domain"
	"github.com/greyledger/sitrep/internal/store"
)

// ReadinessChecker reports whether the pipeline is ready to serve.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Refresher starts a manual ingestion round for a class. The round runs in
// the background and is not bound to the triggering request.
type Refresher interface {
	TriggerNow(class domain.SourceClass) error
}

// StatsSource summarizes the working set.
type StatsSource interface {
	Stats() store.Stats
}

// Server exposes the operational endpoints.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	refresher   Refresher
	stats       StatsSource
	corsOrigins []string
}

// NewServer creates the HTTP server and its routes. corsOrigins lists the
// browser origins allowed to read /stats; empty disables CORS headers.
func NewServer(addr string, ready ReadinessChecker, refresher Refresher, stats StatsSource, corsOrigins []string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:      logger,
		refresher:   refresher,
		stats:       stats,
		corsOrigins: corsOrigins,
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready.CheckReadiness(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /refresh", s.handleRefresh)

	return s
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Stats()); err != nil {
		s.logger.Error("encode stats failed", "error", err)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

// handleRefresh triggers a round for the class named in the "class" query
// parameter, or for every class when it is absent. An overlapping run yields
// 409 for that class; otherwise the trigger is accepted with 202.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	classes := domain.Classes()
	if requested := r.URL.Query().Get("class"); requested != "" {
		class := domain.SourceClass(requested)
		if !validClass(class) {
			http.Error(w, "unknown source class", http.StatusBadRequest)
			return
		}
		classes = []domain.SourceClass{class}
	}

	rejected := make([]string, 0)
	for _, class := range classes {
		if err := s.refresher.TriggerNow(class); err != nil {
			if errors.Is(err, domain.ErrRunInProgress) {
				rejected = append(rejected, string(class))
				continue
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(rejected) == len(classes) {
		w.WriteHeader(http.StatusConflict)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"triggered": len(classes) - len(rejected),
		"rejected":  rejected,
	})
}

func validClass(class domain.SourceClass) bool {
	for _, c := range domain.Classes() {
		if c == class {
			return true
		}
	}
	return false
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
