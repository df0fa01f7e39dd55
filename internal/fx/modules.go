package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/scythe504/mathquest-backend/internal/config"
	"github.com/scythe504/mathquest-backend/internal/database"
	"github.com/scythe504/mathquest-backend/internal/logger"
	"github.com/scythe504/mathquest-backend/internal/persist"
	"github.com/scythe504/mathquest-backend/internal/relay"
	"github.com/scythe504/mathquest-backend/internal/repository"
	"github.com/scythe504/mathquest-backend/internal/server"
	"github.com/scythe504/mathquest-backend/internal/store"
)

func ProvideLogger(cfg *config.RelayConfig) zerolog.Logger {
	return logger.New(cfg.LogLevel, cfg.LogPretty)
}

func ProvideMirror(accounts *repository.AccountRepository, duels *repository.DuelRepository, logger zerolog.Logger) *persist.Mirror {
	return persist.NewMirror(accounts, duels, logger)
}

func ProvideServer(cfg *config.RelayConfig, hub *store.Hub, rl *relay.Relay, duels *repository.DuelRepository, logger zerolog.Logger) *server.Server {
	return server.NewServer(cfg, hub, rl, duels, logger)
}

var Module = fx.Options(
	fx.Provide(config.LoadRelay),
	fx.Provide(ProvideLogger),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewAccountRepository),
	fx.Provide(repository.NewDuelRepository),
	// record tree
	fx.Provide(store.NewHub),
	fx.Provide(ProvideMirror),
	fx.Provide(relay.New),
	// server
	fx.Provide(ProvideServer),
)
