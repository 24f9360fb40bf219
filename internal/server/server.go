// Package server assembles the HTTP surface: the proxy prefix feeding the
// resolution pipeline, the live-viewer websocket, the management API, and
// the operational endpoints.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/events"
	"github.com/zsjie/imock-open/internal/monitoring"
	"github.com/zsjie/imock-open/internal/proxy"
	"github.com/zsjie/imock-open/internal/store"
)

// Server is the process-level HTTP server.
type Server struct {
	cfg      *config.Config
	store    store.Store
	hub      *events.Hub
	tracker  *monitoring.Tracker
	pipeline *proxy.Pipeline

	httpServer *http.Server
}

// New wires the full routing table. Requests under the proxy prefix that
// carry a mock identity are resolved by the pipeline; everything else falls
// through to the management mux.
func New(cfg *config.Config, st store.Store, pipeline *proxy.Pipeline, hub *events.Hub, tracker *monitoring.Tracker) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		hub:      hub,
		tracker:  tracker,
		pipeline: pipeline,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /ws", hub.WSHandler())
	s.registerManagementRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      pipeline.Middleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth probes the store so load balancers see real readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("health check store probe failed")
		respondErr(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats reports request counters. Loopback callers only.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	ip := net.ParseIP(host)
	if err != nil || ip == nil || !ip.IsLoopback() {
		respondErr(w, http.StatusForbidden, "stats is local-only")
		return
	}
	if s.tracker == nil {
		respond(w, http.StatusOK, map[string]any{"total": 0})
		return
	}
	total, byTag := s.tracker.Stats()
	respond(w, http.StatusOK, map[string]any{
		"total":         total,
		"byResolution":  byTag,
		"stageOrder":    s.pipeline.StageNames(),
		"liveListeners": s.hub.SubscriberCount(r.URL.Query().Get("imockId")),
	})
}
