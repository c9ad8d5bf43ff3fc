package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/redcentre/carbonsvc/internal/batch"
	"github.com/redcentre/carbonsvc/internal/executor"
	"github.com/redcentre/carbonsvc/internal/session"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	// defaultSessionMaxIdle is the idle age past which cleanup ends a session.
	defaultSessionMaxIdle = 7 * 24 * time.Hour
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router         *chi.Mux
	batches        *batch.Service
	sessions       *session.Manager
	cache          *session.Cache
	engines        *executor.Registry
	engineName     string
	sessionMaxIdle time.Duration
	logger         *slog.Logger
	addr           string
}

// Option configures a Server.
type Option func(*Server)

// WithSessionMaxIdle sets the default idle age used by session cleanup.
func WithSessionMaxIdle(d time.Duration) Option {
	return func(s *Server) { s.sessionMaxIdle = d }
}

// WithActiveEngine names the engine the service runs reports with.
func WithActiveEngine(name string) Option {
	return func(s *Server) { s.engineName = name }
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, batches *batch.Service, sessions *session.Manager, cache *session.Cache, engines *executor.Registry, logger *slog.Logger, opts ...Option) *Server {
	srv := &Server{
		router:         chi.NewRouter(),
		batches:        batches,
		sessions:       sessions,
		cache:          cache,
		engines:        engines,
		sessionMaxIdle: defaultSessionMaxIdle,
		logger:         logger,
		addr:           addr,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/engines", s.handleListEngines)
	s.router.Get("/v1/stats", s.handleGetStats)

	s.router.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", s.handleStartBatch)
		r.Get("/{id}", s.handleGetBatch)
		r.Get("/{id}/events", s.handleBatchEvents)
		r.Delete("/{id}", s.handleCancelBatch)
	})

	s.router.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/", s.handleListSessions)
		r.Post("/cleanup", s.handleCleanupSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleEndSession)
		r.Put("/{id}/state", s.handlePutState)
		r.Get("/{id}/state", s.handleGetState)
		r.Put("/{id}/job", s.handleSetJob)
		r.Put("/{id}/report", s.handleSetReport)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received
// or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", ctx.Err().Error())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
