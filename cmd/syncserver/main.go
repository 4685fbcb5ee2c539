// Package main provides the sync server binary: the session registry, the
// proximity router, and every transport run under one lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/proxsync/internal/config"
	"github.com/cory-johannsen/proxsync/internal/frontend/handlers"
	"github.com/cory-johannsen/proxsync/internal/frontend/telnet"
	"github.com/cory-johannsen/proxsync/internal/frontend/websocket"
	"github.com/cory-johannsen/proxsync/internal/game/moderation"
	"github.com/cory-johannsen/proxsync/internal/game/proximity"
	"github.com/cory-johannsen/proxsync/internal/game/session"
	"github.com/cory-johannsen/proxsync/internal/game/spatial"
	"github.com/cory-johannsen/proxsync/internal/gameserver"
	"github.com/cory-johannsen/proxsync/internal/observability"
	"github.com/cory-johannsen/proxsync/internal/scripting"
	"github.com/cory-johannsen/proxsync/internal/server"
	"github.com/cory-johannsen/proxsync/internal/storage/postgres"
)

const dbHealthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting sync server",
		zap.String("websocket_addr", cfg.WebSocket.Addr()),
		zap.Int("tick_rate", cfg.Simulation.TickRate),
		zap.Float64("radius", cfg.Simulation.ProximityRadius),
	)

	registry := session.NewRegistry(spatial.Position{X: cfg.Simulation.SpawnX, Y: cfg.Simulation.SpawnY})
	router := proximity.NewRouter(cfg.Simulation.ProximityRadius)

	var moderator *moderation.Moderator
	if cfg.Chat.WordList != "" {
		words, err := moderation.LoadWordList(cfg.Chat.WordList)
		if err != nil {
			logger.Fatal("loading word list", zap.String("path", cfg.Chat.WordList), zap.Error(err))
		}
		moderator, err = moderation.NewModerator(words, cfg.Chat.Censor())
		if err != nil {
			logger.Fatal("building moderator", zap.Error(err))
		}
		logger.Info("loaded word list", zap.Int("words", len(words)))
	}
	policy := gameserver.NewChatPolicy(cfg.Chat.MaxLength, cfg.Chat.RatePerSecond, cfg.Chat.Burst, moderator)

	lifecycle := server.NewLifecycle(logger)

	// Storage is registered first so it is stopped last, after the journal flushes.
	var journal gameserver.Journal
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		health := server.NewContextService(func(ctx context.Context) error {
			ticker := time.NewTicker(dbHealthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := pool.Health(ctx, 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: health.Start,
			StopFn: func() {
				health.Stop()
				pool.Close()
			},
		})

		async := gameserver.NewAsyncJournal(
			postgres.NewJournalRepository(pool.DB()),
			cfg.Database.JournalQueue,
			observability.Component(logger, "journal"),
		)
		lifecycle.Add("journal", async)
		journal = async
	}

	svc := gameserver.NewSyncService(
		registry,
		router,
		policy,
		journal,
		cfg.Simulation.OutboxSize,
		observability.Component(logger, "sync"),
	)

	ticks := gameserver.NewTickScheduler(cfg.Simulation.TickRate)
	if dir := cfg.Scripting.TickScriptDir; dir != "" {
		scripts := scripting.NewManager(cfg.Scripting.InstructionLimit, observability.Component(logger, "scripting"))
		scripts.Count = registry.Count
		scripts.Players = func() []scripting.PlayerInfo {
			roster := svc.Roster()
			out := make([]scripting.PlayerInfo, len(roster))
			for i, p := range roster {
				out[i] = scripting.PlayerInfo{ID: p.ID, X: p.X, Y: p.Y}
			}
			return out
		}
		n, err := scripts.Load(dir)
		if err != nil {
			logger.Fatal("loading tick scripts", zap.String("dir", dir), zap.Error(err))
		}
		logger.Info("loaded tick scripts", zap.String("dir", dir), zap.Int("files", n))
		defer scripts.Close()
		ticks.Register("scripting", scripts.OnTick)
	}
	lifecycle.Add("ticks", server.NewContextService(func(ctx context.Context) error {
		ticks.Start(ctx)
		<-ctx.Done()
		return ctx.Err()
	}))

	if cfg.GameServer.Enabled {
		grpcServer := gameserver.NewGRPCServer(cfg.GameServer.Addr(), svc, observability.Component(logger, "grpc"))
		lifecycle.Add("grpc", &server.FuncService{
			StartFn: grpcServer.Start,
			StopFn:  grpcServer.Stop,
		})
	}

	if cfg.Telnet.Enabled {
		acceptor := telnet.NewAcceptor(cfg.Telnet,
			handlers.NewTextBridge(svc, observability.Component(logger, "telnet")),
			observability.Component(logger, "telnet"),
		)
		lifecycle.Add("telnet", &server.FuncService{
			StartFn: acceptor.ListenAndServe,
			StopFn:  acceptor.Stop,
		})
	}

	ws := websocket.NewServer(cfg.WebSocket, svc,
		cfg.Simulation.TickRate, cfg.Simulation.ProximityRadius,
		observability.Component(logger, "websocket"),
	)
	lifecycle.Add("websocket", ws)

	logger.Info("sync server initialized",
		zap.Strings("services", lifecycle.Names()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
