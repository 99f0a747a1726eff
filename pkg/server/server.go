package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"swap-relay/pkg/swap"
)

const shutdownGrace = 10 * time.Second

// Orchestrator is the engine surface the HTTP boundary needs.
type Orchestrator interface {
	Initiate(ctx context.Context, req swap.InitiateRequest) (*swap.Intent, error)
	Confirm(ctx context.Context, req swap.ConfirmRequest) (*swap.Intent, error)
	Get(depositAddress string) (*swap.Intent, error)
}

// Options configures the HTTP server.
type Options struct {
	ListenAddr     string
	AllowedOrigins []string
	RatePerMinute  int
	QuoteTTL       time.Duration
}

// Server exposes the relayer over HTTP.
type Server struct {
	orchestrator Orchestrator
	metrics      *Metrics
	quoteTTL     time.Duration
	httpServer   *http.Server
	log          zerolog.Logger
}

// New builds the server and its router.
func New(orchestrator Orchestrator, opts Options, log zerolog.Logger) *Server {
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}
	if opts.QuoteTTL == 0 {
		opts.QuoteTTL = swap.DefaultQuoteTTL
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		orchestrator: orchestrator,
		metrics:      NewMetrics(registry),
		quoteTTL:     opts.QuoteTTL,
		log:          log.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recoverer(s.log))
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(httprate.LimitByIP(opts.RatePerMinute, time.Minute))
	r.Use(corsHandler(opts.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(noCache)
		r.Post("/swap", s.handleSwap)
		r.Post("/confirm", s.handleConfirm)
		r.Get("/swap/{depositAddress}", s.handleStatus)
	})

	s.httpServer = &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
