package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tourney-service/config"
	"tourney-service/handlers"
	"tourney-service/models"
	"tourney-service/provider"
	"tourney-service/services"
	"tourney-service/utils"
	"tourney-service/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	backend := newProvider(cfg)
	providerID, err := ensureProviderRegistration(ctx, cfg, backend, logger)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()

	tournamentService := services.NewTournamentService(db, backend, providerID, logger)
	tournamentService.Clock = clock

	gameService := services.NewGameService(db, backend, logger)
	gameService.Clock = clock
	if cfg.Poller.StaleGameTimeout > 0 {
		gameService.Stale = services.OpenTimeout(cfg.Poller.StaleGameTimeout)
	}
	if cfg.R2.Enabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		gameService.Archive = archive
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	worker := workers.NewReconcileWorker(gameService, workers.Options{
		Interval:       cfg.Poller.Interval,
		MaxConcurrency: cfg.Poller.Concurrency,
		// a reconcile makes up to three provider calls
		PollTimeout: 3 * cfg.Provider.Timeout,
	}, clock, workers.NewMetrics(registry), logger)
	if err := worker.Start(ctx); err != nil {
		return err
	}

	app := handlers.NewApp(handlers.AppDeps{
		ServiceToken: cfg.ServiceToken,
		Tournaments:  tournamentService,
		Games:        gameService,
		Reconciler:   worker,
		Gatherer:     registry,
		Logger:       logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("✅ server listening",
			zap.String("addr", addr),
			zap.String("provider_backend", cfg.Provider.Backend),
			zap.Bool("developer", cfg.Provider.Developer),
		)
		listenErr <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		_ = worker.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := worker.Stop(); err != nil {
		logger.Error("failed to stop poller", zap.Error(err))
	}
	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseURL)
	default:
		dialector = postgres.Open(cfg.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func newProvider(cfg *config.Config) provider.Provider {
	if cfg.Provider.Backend == config.BackendMemory {
		return provider.NewMemory()
	}
	return provider.NewClient(provider.Options{
		APIKey:       cfg.Provider.APIKey,
		BaseURL:      cfg.Provider.APIURL,
		MatchBaseURL: cfg.Provider.MatchAPIURL,
		Stub:         cfg.Provider.Developer,
		Timeout:      cfg.Provider.Timeout,
	})
}

// ensureProviderRegistration registers a provider with the tournament API on
// first boot. The returned id should be persisted as PROVIDER_ID.
func ensureProviderRegistration(ctx context.Context, cfg *config.Config, p provider.Provider, logger *zap.Logger) (int64, error) {
	if cfg.Provider.ProviderID != 0 || cfg.Provider.Backend != config.BackendRiot {
		return cfg.Provider.ProviderID, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Provider.Timeout)
	defer cancel()
	id, err := p.CreateProvider(callCtx, cfg.Provider.CallbackURL, cfg.Provider.Region)
	if err != nil {
		return 0, fmt.Errorf("failed to register provider: %w", err)
	}
	logger.Warn("registered a new provider, set PROVIDER_ID to keep it",
		zap.Int64("provider_id", id),
		zap.String("callback_url", cfg.Provider.CallbackURL),
		zap.String("region", cfg.Provider.Region),
	)
	return id, nil
}
