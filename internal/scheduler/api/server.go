// Package api exposes the scheduler daemon's local status endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vcf-tools/pingkit/internal/scheduler"
)

// Server is the localhost-only HTTP surface of the scheduler daemon.
type Server struct {
	port      int
	sched     *scheduler.Scheduler
	router    *mux.Router
	startedAt time.Time
	httpSrv   *http.Server
}

// NewServer creates the status API server for a running scheduler.
func NewServer(port int, sched *scheduler.Scheduler) *Server {
	s := &Server{
		port:      port,
		sched:     sched,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/run", s.handleRunNow).Methods("POST")
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", s.httpSrv.Addr).Info("📡 Scheduler status API listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API server failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.sched.Config())
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sched.RunNow(r.Context())
	if err != nil {
		log.WithError(err).Error("On-demand batch failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, summary)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("Failed to encode API response")
	}
}
