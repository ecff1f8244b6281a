// Package api serves the session status endpoints and the live caption
// stream over SSE.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/config"
	"github.com/oxlade/meetscribe/internal/metrics"
	"github.com/oxlade/meetscribe/internal/session"
)

// StatusSource exposes the running session to the API layer. The session
// controller implements it; api owns the interface so there is no import
// cycle.
type StatusSource interface {
	Status() session.Status
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, status StatusSource, captions *Broadcaster, checks map[string]HealthCheck, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(status, checks, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/api/v1/session", NewSessionHandler(status).ServeHTTP)
		NewCaptionsHandler(captions).Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:        cfg.HTTPAddr,
			Handler:     r,
			ReadTimeout: cfg.ReadTimeout,
			IdleTimeout: cfg.IdleTimeout,
			// No WriteTimeout: the caption stream holds its connection open
			// for the life of the session.
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
