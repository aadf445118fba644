// Package server exposes the allocation engine over an HTTP JSON API plus a
// websocket event feed.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tberndt/labelq/internal/events"
	"github.com/tberndt/labelq/internal/metrics"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// Engine is the allocation surface the handlers call. *alloc.Allocator
// satisfies it.
type Engine interface {
	Sample(ctx context.Context, reviewer string, limit int, exclude map[string]bool) ([]models.WorkItem, error)
	ClaimSingle(ctx context.Context, key, reviewer string, force bool, roles []string) (*models.WorkItem, error)
	SelfAssignBatch(ctx context.Context, reviewer string, limit int) ([]models.WorkItem, error)
	Release(ctx context.Context, key string) (*models.WorkItem, error)
	Transition(ctx context.Context, key string, to models.Status, reviewer string) (*models.WorkItem, error)
}

// Backlog serves the read-side listing. *store.Gateway satisfies it.
type Backlog interface {
	List(ctx context.Context, f store.Filters, s store.Sort, p store.Page) ([]models.WorkItem, store.PageInfo, error)
}

// Options wires the server's collaborators.
type Options struct {
	Engine  Engine
	Backlog Backlog
	Hub     *events.Hub
	Metrics *metrics.Collector
	Logger  *slog.Logger

	Port        string
	JWTSecret   string
	PageSizeMin int
	PageSizeMax int
}

// Server is the HTTP front of the allocation service.
type Server struct {
	engine      Engine
	backlog     Backlog
	hub         *events.Hub
	metrics     *metrics.Collector
	logger      *slog.Logger
	pageSizeMin int
	pageSizeMax int

	httpServer *http.Server
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.PageSizeMin <= 0 {
		opts.PageSizeMin = 1
	}
	if opts.PageSizeMax <= 0 {
		opts.PageSizeMax = 100
	}

	s := &Server{
		engine:      opts.Engine,
		backlog:     opts.Backlog,
		hub:         opts.Hub,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		pageSizeMin: opts.PageSizeMin,
		pageSizeMax: opts.PageSizeMax,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           s.routes(opts.JWTSecret),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler(jwtSecret string) http.Handler {
	return s.routes(jwtSecret)
}

func (s *Server) routes(jwtSecret string) http.Handler {
	auth := AuthMiddleware(jwtSecret, s.logger)
	logged := LoggingMiddleware(s.logger)

	mux := http.NewServeMux()
	mux.Handle("POST /api/sample", logged(auth(http.HandlerFunc(s.handleSample))))
	mux.Handle("POST /api/claim", logged(auth(http.HandlerFunc(s.handleClaim))))
	mux.Handle("POST /api/release", logged(auth(http.HandlerFunc(s.handleRelease))))
	mux.Handle("GET /api/items", logged(auth(http.HandlerFunc(s.handleItems))))
	mux.Handle("GET /stats", logged(http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /health", logged(http.HandlerFunc(s.handleHealth)))

	// The websocket upgrade needs the raw ResponseWriter, so no logging
	// wrapper here.
	if s.hub != nil {
		mux.Handle("GET /ws", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			events.ServeWS(s.hub, w, r)
		})))
	}
	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
