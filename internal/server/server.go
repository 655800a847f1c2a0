package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/server/handler"
	"github.com/alanyoungcy/ammarbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the endpoint handlers the server registers. Audit
// and Markets are optional; their routes are omitted when nil.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Pairs         *handler.PairHandler
	Opportunities *handler.OpportunityHandler
	Audit         *handler.AuditHandler
	Markets       *handler.MarketHandler
}

// Server is the headless operator API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The
// liveness endpoint sits outside the auth chain so load balancers can
// probe without a key.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	api.HandleFunc("GET /api/pairs", handlers.Pairs.ListPairs)
	api.HandleFunc("POST /api/pairs", handlers.Pairs.CreatePair)
	api.HandleFunc("PATCH /api/pairs/{id}", handlers.Pairs.SetPairActive)

	api.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)

	if handlers.Audit != nil {
		api.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)
	}
	if handlers.Markets != nil {
		api.HandleFunc("GET /api/markets/search", handlers.Markets.SearchMarkets)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handlers.Health.Check)
	root.Handle("/api/", middleware.Auth(cfg.APIKey)(api))

	var h http.Handler = root
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start listens for requests and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
