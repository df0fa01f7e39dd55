package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/config"
	"github.com/scythe504/mathquest-backend/internal/relay"
	"github.com/scythe504/mathquest-backend/internal/store"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = time.Minute
)

// DuelHistory is the archive read by /duels/recent.
type DuelHistory interface {
	Enabled() bool
	Recent(ctx context.Context, limit int) ([]internal.DuelSummary, error)
}

type Server struct {
	cfg    *config.RelayConfig
	hub    *store.Hub
	relay  *relay.Relay
	duels  DuelHistory
	logger zerolog.Logger
	http   *http.Server
}

func NewServer(cfg *config.RelayConfig, hub *store.Hub, rl *relay.Relay, duels DuelHistory, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		hub:    hub,
		relay:  rl,
		duels:  duels,
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("relay listening")

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("server stopped")
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
