package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"agentwatch/internal/config"
	"agentwatch/internal/realtime"
	"agentwatch/pkg/logger"
)

const (
	healthPath  = "/api/health"
	publishPath = "/api/relay/publish"

	maxPublishBytes = 1024 * 1024
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
	Clients int    `json:"clients"`
}

// PublishResponse is the body of a successful publish.
type PublishResponse struct {
	Type    string `json:"type"`
	Clients int    `json:"clients"`
}

// Server is the relay HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub
	cfg        config.RelayConfig
	version    string
	startedAt  time.Time
}

// NewServer creates a relay server around hub.
func NewServer(cfg config.RelayConfig, hub *Hub, version string) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = config.DefaultHeartbeat
	}

	s := &Server{
		router:    mux.NewRouter(),
		hub:       hub,
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     recovery(logging(s.router)),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc(config.DefaultWSPath, func(w http.ResponseWriter, r *http.Request) {
		ServeWs(s.hub, s.cfg.HeartbeatInterval, w, r)
	}).Methods(http.MethodGet)
	s.router.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc(publishPath, s.handlePublish).Methods(http.MethodPost)
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub { return s.hub }

// Serve runs the hub and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Relay listening")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Close websocket clients before the HTTP shutdown waits on them.
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	logger.Info().Msg("Relay stopped")
	return nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  int64(time.Since(s.startedAt).Seconds()),
		Clients: s.hub.ClientCount(),
	})
}

// handlePublish broadcasts the request body, which must be one envelope, as is.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBytes+1))
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "failed to read body")
		return
	}
	if len(body) > maxPublishBytes {
		SendError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "envelope too large")
		return
	}

	env, err := realtime.DecodeEnvelope(body)
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if !s.hub.Broadcast(body) {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "relay is shutting down")
		return
	}

	logger.Debug().Str("type", env.Type).Msg("Published envelope")
	SendJSON(w, http.StatusAccepted, PublishResponse{Type: env.Type, Clients: s.hub.ClientCount()})
}
