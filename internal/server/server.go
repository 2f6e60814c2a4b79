package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/itstheanurag/coderunner/internal/api"
	"github.com/itstheanurag/coderunner/internal/config"
	"github.com/itstheanurag/coderunner/internal/limiter"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/itstheanurag/coderunner/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	pipeline    *Pipeline
	queue       *queue.Manager
	workers     []*worker.Worker
	rateLimiter *limiter.RateLimiter
	cancelFunc  context.CancelFunc
}

func New(
	conf *config.Config,
	logger *zerolog.Logger,
) (*Server, error) {

	p, err := NewPipeline(conf, logger)
	if err != nil {
		return nil, err
	}
	p.Sweep()

	s := &Server{
		conf:     conf,
		logger:   logger,
		pipeline: p,
	}

	// Requests run inline unless a worker pool is configured.
	var runner api.Runner = p.Executor
	if n := conf.Admission.Workers; n > 0 {
		s.queue = queue.NewManager(conf.Admission.QueueCapacity)
		s.workers = make([]*worker.Worker, n)
		for i := 0; i < n; i++ {
			s.workers[i] = worker.NewWorker(i, p.Executor, s.queue, logger)
		}
		runner = s.queue
	}

	if rl := conf.RateLimit; rl.Enabled {
		s.rateLimiter = limiter.NewRateLimiter(rl.GlobalRPS, rl.PerIPRPS, rl.PerIPBurst, rl.MaxConcurrent)
		if err := s.rateLimiter.TrustProxies(rl.TrustedProxies); err != nil {
			return nil, fmt.Errorf("failed to configure rate limiter: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:         conf.Server.Addr(),
		Handler:      s.routes(api.NewHandler(runner, p.Registry)),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

func (s *Server) routes(handler *api.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(*s.logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Method checks live in the handler so every non-POST gets the same 405.
	execute := http.Handler(http.HandlerFunc(handler.Execute))
	if s.rateLimiter != nil {
		execute = s.rateLimiter.Middleware(execute)
	}
	r.Handle("/api", execute)
	r.Get("/api/languages", handler.Languages)

	return r
}

// requestIDLogger adds chi's request id to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// startBackground launches the worker pool and limiter cleanup.
func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	for _, w := range s.workers {
		go w.Start(ctx)
	}
	if s.rateLimiter != nil {
		s.rateLimiter.StartCleanup(ctx, s.conf.RateLimit.CleanupInterval)
	}
}

func (s *Server) Start() error {
	if missing := s.pipeline.Preflight(context.Background()); len(missing) > 0 {
		s.logger.Warn().Interface("languages", missing).Msg("some languages are unavailable")
	}

	s.startBackground()

	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Str("backend", s.conf.Sandbox.Backend).
		Str("workspace", s.pipeline.Workspace.Root).
		Int("workers", len(s.workers)).
		Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	// Shutdown waits for in-flight requests, whose pipelines always finish.
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if err := s.pipeline.Close(); err != nil {
		return fmt.Errorf("failed to close sandbox: %w", err)
	}

	return nil
}
