// coupd game server — authoritative rules engine, session phase clock,
// REST facade, and chat fan-out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coupgame/coupd/pkg/api"
	"github.com/coupgame/coupd/pkg/clock"
	"github.com/coupgame/coupd/pkg/config"
	"github.com/coupgame/coupd/pkg/database"
	"github.com/coupgame/coupd/pkg/fanout"
	"github.com/coupgame/coupd/pkg/game"
	"github.com/coupgame/coupd/pkg/orchestrator"
	"github.com/coupgame/coupd/pkg/services"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default: COUPD_CONFIG or coupd.yaml)")
	flag.Parse()

	// Load .env for database credentials; absence is fine.
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// 1. Service configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database: connect and apply migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	logger.Info("Connected to PostgreSQL database", "host", dbConfig.Host, "database", dbConfig.Database)

	// 3. Domain services. The RNG is shared by request handlers and the
	// clock workers, so it must be the locked wrapper.
	rng := game.LockRNG(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	llmPusher := fanout.NewLLMPusher(cfg.LLM.ReasoningURL, cfg.LLM.PushTimeout.Std(), logger)
	sessionService := services.NewSessionService(dbClient.Pool(), rng, logger)
	playerService := services.NewPlayerService(dbClient.Pool(), rng, logger)
	chatService := services.NewChatService(dbClient.Pool(), llmPusher, logger)
	logger.Info("Services initialized", "llm_push_enabled", llmPusher.Enabled())

	// 4. Chat fan-out: broadcast phase pushes plus the periodic tick.
	broadcaster := fanout.NewBroadcaster(dbClient.Pool(),
		cfg.Broadcast.EndpointTimeout.Std(), cfg.Broadcast.TickInterval.Std(), logger)
	broadcaster.Start(ctx)
	defer broadcaster.Stop()

	// 5. Phase clock. Sessions whose deadlines expired while the process
	// was down fire on the first poll; no separate recovery step is needed.
	resolver := game.NewResolver(rng)
	orch := orchestrator.New(resolver, broadcaster, llmPusher, logger)
	scheduler := clock.NewScheduler(dbClient.Pool(), orch,
		cfg.Clock.WorkerCount, cfg.Clock.PollInterval.Std(), logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 6. HTTP server.
	apiServer := api.NewServer(dbClient, sessionService, playerService, chatService, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: apiServer.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("Shutdown complete")
}
