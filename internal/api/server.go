package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/clock"
	"github.com/JakeFAU/labor-stats-dashboard/internal/config"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dashboard"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/metrics"
)

// Service is the dashboard behavior the handlers expose.
type Service interface {
	States(ctx context.Context) (dashboard.States, error)
	Districts(ctx context.Context, state string) (dashboard.Districts, error)
	Dashboard(ctx context.Context, state, district string, months int) (dashboard.Dashboard, error)
	Refresh(ctx context.Context) (dashboard.Refresh, error)
}

// Store is the read side of the reconciliation store.
type Store interface {
	LatestSnapshot(ctx context.Context, datasetName string) (dataset.SnapshotInfo, error)
	Ping(ctx context.Context) error
}

// RequestIDGenerator issues ids for requests that arrive without one.
type RequestIDGenerator interface {
	NewRequestID() string
}

const readyTimeout = 3 * time.Second

// Server wires HTTP handlers to the dashboard service and store.
type Server struct {
	router  chi.Router
	timeout time.Duration
	// refreshTimeout replaces timeout for POST /refresh, which runs a full ETL cycle.
	refreshTimeout time.Duration
	service        Service
	store          Store
	ids            RequestIDGenerator
	clock          clock.Clock
	cfg            config.Config
	logger         *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	service Service,
	store Store,
	ids RequestIDGenerator,
	clk clock.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &Server{
		service: service,
		store:   store,
		ids:     ids,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}
	s.timeout = cfg.RequestTimeout()
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	s.refreshTimeout = cfg.RefreshTimeout()
	if s.refreshTimeout < s.timeout {
		s.refreshTimeout = s.timeout
	}
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.With(timeoutMiddleware(s.timeout)).Get("/", s.root)
	r.With(timeoutMiddleware(s.timeout)).Handle("/metrics", metrics.Handler())
	s.routes(r)
	r.Route("/api/v1", s.routes)

	s.router = r
	return s
}

// routes registers the API. Reads share the request timeout; refresh is bounded inside its
// handler instead, since it outlives a normal request.
func (s *Server) routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(s.timeout))
		r.Get("/health", s.health)
		r.Get("/readyz", s.readyz)
		r.Get("/states", s.listStates)
		r.Get("/districts", s.listDistricts)
		r.Get("/dashboard", s.getDashboard)
		r.Get("/snapshots/latest", s.latestSnapshot)
	})
	r.Group(func(r chi.Router) {
		if s.cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(s.cfg.Auth.APIKey))
		}
		r.Post("/refresh", s.refresh)
	})
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
