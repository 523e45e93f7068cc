// Package server wires the HTTP surface together.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/echoboard/echoboard/internal/config"
	"github.com/echoboard/echoboard/internal/directory"
	"github.com/echoboard/echoboard/internal/dynamo"
	"github.com/echoboard/echoboard/internal/events"
	"github.com/echoboard/echoboard/internal/middleware"
	"github.com/echoboard/echoboard/internal/token"
)

// Server is the HTTP server.
type Server struct {
	cfg         *config.Config
	store       dynamo.Store
	dir         *directory.Directory
	tokens      *token.Store
	nats        *events.Client // nil when event publishing is disabled
	rateLimiter *middleware.RateLimiter
	server      *http.Server
}

// New creates a new Server. nats may be nil.
func New(cfg *config.Config, store dynamo.Store, dir *directory.Directory, tokens *token.Store, nats *events.Client) *Server {
	if cfg.IsSelfHosted() {
		slog.Info("Running in self-hosted mode",
			"auth_mode", string(cfg.AuthMode),
			"default_account", cfg.DefaultAccountID,
		)
	}

	s := &Server{
		cfg:         cfg,
		store:       store,
		dir:         dir,
		tokens:      tokens,
		nats:        nats,
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.routes(),
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return s.server.Shutdown(ctx)
}
