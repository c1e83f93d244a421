// Package main provides the Hetman room server binary: websocket sessions and the
// create/join API on the HTTP port, gRPC health on the admin port.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/config"
	"github.com/cory-johannsen/hetman/internal/game/bot"
	"github.com/cory-johannsen/hetman/internal/game/bus"
	"github.com/cory-johannsen/hetman/internal/game/deck"
	"github.com/cory-johannsen/hetman/internal/game/engine"
	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/gateway"
	"github.com/cory-johannsen/hetman/internal/observability"
	"github.com/cory-johannsen/hetman/internal/server"
	"github.com/cory-johannsen/hetman/internal/storage/postgres"
)

const dbHealthInterval = 15 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty = defaults and environment")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading env file: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting hetman server",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("admin_addr", cfg.Server.AdminAddr()),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger)

	// Card content
	lib, err := loadLibrary(cfg.Content)
	if err != nil {
		logger.Fatal("loading decks", zap.Error(err))
	}
	logger.Info("decks loaded",
		zap.Strings("packs", lib.Packs()),
		zap.Int("prompts", lib.PromptCount()),
		zap.Int("answers", lib.AnswerCount()),
	)

	// Optional NATS mirror of room notices
	var mirror bus.Mirror
	if cfg.NATS.URL != "" {
		nc, err := bus.Connect(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("connecting to nats", zap.Error(err))
		}
		defer nc.Close()
		m := bus.NewNATSMirror(nc, cfg.NATS.SubjectPrefix, 1024, logger)
		lifecycle.Add("nats-mirror", m)
		mirror = m
		logger.Info("nats mirror enabled", zap.String("prefix", cfg.NATS.SubjectPrefix))
	}

	admin := server.NewAdminServer(cfg.Server.AdminAddr(), logger)

	// Optional result archive
	var archive gateway.Archive
	if cfg.Database.Enabled {
		dbStart := time.Now()
		results, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer results.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		archive = results
		lifecycle.Add("db-health", dbHealthService(results, admin, logger))
	}

	clock := clockwork.NewRealClock()
	src := rng.NewCryptoSource()
	store := room.NewStore(clock, src, logger)
	notices := bus.New(logger, mirror)
	eng := engine.New(engine.ConfigFrom(cfg.Game), store, lib, src, notices, logger)
	bots := bot.New(eng, src, cfg.Game.BotThinkMin, cfg.Game.BotThinkMax, logger)
	gw := gateway.New(gateway.ConfigFrom(cfg.Game, cfg.Websocket), store, eng, bots, notices, archive, logger)

	ws := gateway.NewWebsocketHandler(gw, cfg.Websocket, gateway.AllowOrigins(cfg.Server.AllowedOrigins), logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gateway.NewHTTPHandler(gw, ws, cfg.Server.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lifecycle.Add("admin-grpc", admin)
	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			store.Shutdown()
			gw.Wait()
		},
	})

	admin.MarkServing()
	logger.Info("hetman server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
	}
}

func loadLibrary(cfg config.ContentConfig) (*deck.Library, error) {
	if cfg.DeckDir == "" {
		return deck.Default()
	}
	return deck.LoadDirectory(cfg.DeckDir)
}

// dbHealthService pings the archive database and mirrors its reachability onto
// the admin health status.
func dbHealthService(results *postgres.ResultRepository, admin *server.AdminServer, logger *zap.Logger) *server.FuncService {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(dbHealthInterval)
			defer ticker.Stop()
			healthy := true
			for {
				select {
				case <-ticker.C:
					err := results.Ping(context.Background(), 5*time.Second)
					switch {
					case err != nil && healthy:
						logger.Warn("database unreachable", zap.Error(err))
						admin.MarkNotServing()
					case err == nil && !healthy:
						logger.Info("database reachable again")
						admin.MarkServing()
					}
					healthy = err == nil
				case <-done:
					return nil
				}
			}
		},
		StopFn: func() { close(done) },
	}
}
