// Package main provides the standalone Telnet frontend. It accepts text
// clients and relays each one to the sync server's gRPC session stream.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/proxsync/internal/config"
	"github.com/cory-johannsen/proxsync/internal/frontend/handlers"
	"github.com/cory-johannsen/proxsync/internal/frontend/telnet"
	"github.com/cory-johannsen/proxsync/internal/gameserver"
	"github.com/cory-johannsen/proxsync/internal/observability"
	"github.com/cory-johannsen/proxsync/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/frontend.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting telnet frontend",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.String("gameserver_addr", cfg.GameServer.Addr()),
	)

	conn, err := grpc.NewClient(cfg.GameServer.Addr(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logger.Fatal("creating gameserver client", zap.Error(err))
	}
	defer conn.Close()

	relay := gameserver.NewRelay(conn, observability.Component(logger, "relay"))
	acceptor := telnet.NewAcceptor(cfg.Telnet,
		handlers.NewTextBridge(relay, observability.Component(logger, "telnet")),
		observability.Component(logger, "telnet"),
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("telnet", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("frontend initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
