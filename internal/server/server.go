// Package server exposes the HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/server/handler"
	"github.com/imperfectform/predictbot/internal/server/middleware"
	"github.com/imperfectform/predictbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
	// WebhookSigned exempts /api/bot/message from API-key auth because the
	// bridge signs it instead.
	WebhookSigned bool
}

// Handlers aggregates the HTTP handlers. Bot and Sweat may be nil, in
// which case their routes are not registered.
type Handlers struct {
	Health      *handler.HealthHandler
	Predictions *handler.PredictionHandler
	Bot         *handler.BotHandler
	Sweat       *handler.SweatHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain: CORS, logging, rate limit, auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, handlers, wsHub, limiter, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	p := handlers.Predictions
	mux.HandleFunc("GET /api/chains", p.ListChains)
	mux.HandleFunc("POST /api/create-prediction", p.CreatePrediction)
	mux.HandleFunc("GET /api/predictions/{chain}/{id}", p.GetPrediction)
	mux.HandleFunc("GET /api/predictions/{chain}/{id}/votes/{address}", p.GetUserVote)
	mux.HandleFunc("GET /api/fees/{chain}", p.GetFeeInfo)

	if b := handlers.Bot; b != nil {
		mux.HandleFunc("POST /api/bot/message", b.Message)
		mux.HandleFunc("POST /api/bot/resolve", b.Resolve)
	}
	if s := handlers.Sweat; s != nil {
		mux.HandleFunc("POST /api/sweat-equity/create-challenge", s.CreateChallenge)
		mux.HandleFunc("POST /api/sweat-equity/autonomous-verification", s.AutonomousVerification)
		mux.HandleFunc("GET /api/sweat-equity/can-create", s.CanCreate)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	public := []string{"/api/health", "/ws"}
	if cfg.WebhookSigned {
		public = append(public, "/api/bot/message")
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, public...)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
