// Package app wires the sourcing service together and manages its lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/talentpipe/sourcing/internal/api"
	"github.com/talentpipe/sourcing/internal/config"
	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/external"
	"github.com/talentpipe/sourcing/internal/ledger"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/queue"
	"github.com/talentpipe/sourcing/internal/realtime"
	"github.com/talentpipe/sourcing/internal/scoring"
	"github.com/talentpipe/sourcing/internal/workflow"
)

// App holds the assembled service.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	server      *api.Server
}

// Options configures App construction.
type Options struct {
	ConfigPath string
	Version    string
}

// New loads configuration and builds the full dependency graph.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(
		logger.String("service", "sourcing"),
		logger.String("version", opts.Version),
	)

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := realtime.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		_ = log.Sync()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	m := metrics.New(nil)
	bus := realtime.NewRedisBus(redisClient, log)

	searches := database.NewSearchRepository(db)
	strategies := database.NewStrategyRepository(db)
	candidates := database.NewCandidateRepository(db)
	credits := database.NewCreditRepository(db)

	parseClient := external.NewParseClient(cfg.External.ParseURL, cfg.External.Timeout, log)
	modelClient := external.NewScoringModelClient(cfg.External.ScoringURL, cfg.External.Timeout, log)
	evaluateClient := external.NewEvaluateClient(cfg.External.EvaluateURL, cfg.External.Timeout, log)
	sourcingClient := external.NewSourcingClient(cfg.External.SourcingURL, cfg.External.Timeout, log)

	models := modelcache.NewService(modelcache.NewRepository(db), modelClient, log)
	publisher := queue.NewHTTPPublisher(cfg.Queue.URL, cfg.Queue.Token, cfg.Queue.CallbackBase, log)
	signer := queue.NewSigner(cfg.Queue.SigningKey, cfg.Queue.NextSigningKey)

	aggregator := scoring.NewAggregator(candidates)
	dispatcher := scoring.NewDispatcher(searches, candidates, models, publisher, bus, m, log)
	worker := scoring.NewWorker(searches, candidates, models, evaluateClient, aggregator, bus, m, log,
		scoring.WorkerConfig{
			MaxAttempts: cfg.Scoring.MaxAttempts,
			Backoff:     cfg.Scoring.Backoff,
		})
	orchestrator := workflow.NewOrchestrator(searches, strategies, candidates, models,
		sourcingClient, parseClient, publisher, bus, m, log,
		workflow.Config{
			PollInterval:    cfg.Workflow.PollInterval,
			MaxPollAttempts: cfg.Workflow.MaxPollAttempts,
		})

	creditLedger := ledger.New(credits, m, log, cfg.Credits.LowThreshold)

	handlers := api.NewHandlers(worker, dispatcher, orchestrator, aggregator, creditLedger, log, opts.Version)
	router := api.NewRouter(handlers, signer, &cfg.Server, cfg.Debug, log)
	server := api.NewServer(router, &cfg.Server, log)

	return &App{
		config:      cfg,
		logger:      log,
		db:          db,
		redisClient: redisClient,
		server:      server,
	}, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	serverErr := a.server.StartAsync()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", logger.Error(err))
	}
	a.Close()
	return nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}
