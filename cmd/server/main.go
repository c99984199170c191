package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/magefree/mage-duel-server/internal/broadcast"
	"github.com/magefree/mage-duel-server/internal/config"
	"github.com/magefree/mage-duel-server/internal/game"
	"github.com/magefree/mage-duel-server/internal/repository"
	"github.com/magefree/mage-duel-server/internal/server"
	"github.com/magefree/mage-duel-server/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting duel server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, decks, closeDir, err := openDirectory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open user directory", zap.Error(err))
	}
	defer closeDir()

	hub := server.NewHub(logger)
	broadcaster := broadcast.New(hub, hub, logger)

	rules := game.Rules{
		StartingLife: cfg.Game.StartingLife,
		OpeningHand:  cfg.Game.OpeningHand,
		MaxPlayers:   cfg.Game.MaxPlayers,
		MinPlayers:   cfg.Game.MinPlayers,
		LogHistory:   cfg.Game.LogHistory,
	}
	sessions := game.NewManager(rules, broadcaster.HandleCommit, logger)
	logger.Info("session manager initialized",
		zap.Int("starting_life", rules.StartingLife),
		zap.Int("opening_hand", rules.OpeningHand),
		zap.Int("max_players", rules.MaxPlayers),
	)

	svc := service.New(sessions, users, decks, logger)
	router := server.NewRouter(svc, hub, cfg.Server.WebSocket.CommandTimeout, cfg.Game.RemoveEmptySessions, logger)
	wsServer := server.NewWebSocketServer(cfg.Server.WebSocket, hub, router, logger)
	grpcServer := server.NewGRPCServer(cfg.Server.GRPC, logger)

	wsLis, err := net.Listen("tcp", cfg.Server.WebSocket.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("address", cfg.Server.WebSocket.Address), zap.Error(err))
	}
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("address", cfg.Server.GRPC.Address), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return wsServer.Serve(wsLis) })
	g.Go(func() error { return grpcServer.Serve(grpcLis) })

	// both listeners are bound
	grpcServer.SetServing(true)
	logger.Info("duel server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	// Wait for a termination signal or a listener failure
	<-gctx.Done()
	logger.Info("shutting down gracefully...", zap.Error(context.Cause(gctx)))

	grpcServer.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown", zap.Error(err))
	}
	grpcServer.Stop()

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
	broadcaster.Close()

	logger.Info("duel server stopped", zap.Int("open_sessions", sessions.Count()))
}

// openDirectory picks the user and deck source: Postgres when a database URL
// is configured, otherwise the in-memory directory, seeded from a file if
// one is given.
func openDirectory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.UserDirectory, service.DeckDirectory, func(), error) {
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		return repository.NewUserRepository(db), repository.NewDeckRepository(db), db.Close, nil
	}

	if cfg.Directory.SeedFile == "" {
		logger.Warn("no database or seed file configured; directory is empty")
		dir := repository.NewMemoryDirectory()
		return dir, dir, func() {}, nil
	}

	dir, err := repository.LoadSeed(cfg.Directory.SeedFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("loaded directory seed", zap.String("file", cfg.Directory.SeedFile))
	return dir, dir, func() {}, nil
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
