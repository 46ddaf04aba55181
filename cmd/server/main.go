package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/teamscryps/backend/internal/brokers"
	"github.com/teamscryps/backend/internal/config"
	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/events"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/audit"
	"github.com/teamscryps/backend/internal/modules/fills"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
	"github.com/teamscryps/backend/internal/modules/snapshot"
	"github.com/teamscryps/backend/internal/realtime"
	"github.com/teamscryps/backend/internal/scheduler"
	"github.com/teamscryps/backend/internal/server"
	"github.com/teamscryps/backend/internal/webhook"
	"github.com/teamscryps/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting order router")
	if cfg.Debug {
		log.Warn().Msg("Debug mode: trader-client authorization and secret checks are relaxed")
	}

	// Initialize the ledger database
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	// Repositories and services
	conn := db.Conn()
	accountsRepo := accounts.NewRepository(conn, log)
	holdingsRepo := holdings.NewRepository(conn, log)
	holdingsSvc := holdings.NewService(holdingsRepo, accountsRepo, log)
	auditRepo := audit.NewRepository(conn, log)
	auditSvc := audit.NewService(auditRepo, log)
	ordersRepo := orders.NewRepository(conn, log)
	fillsRepo := orders.NewFillRepository(conn, log)

	bus := events.NewBus(log)
	factory := brokers.NewFactory(cfg, log)

	ordersSvc := orders.NewService(conn, ordersRepo, holdingsSvc, accountsRepo, auditSvc, bus, factory, cfg.Debug, log)
	fillsSvc := fills.NewService(conn, ordersRepo, fillsRepo, holdingsSvc, accountsRepo, auditSvc, bus, factory, log)
	snapshotRepo := snapshot.NewRepository(conn, log)
	snapshotSvc := snapshot.NewService(conn, snapshotRepo, holdingsRepo, accountsRepo, fillsRepo, log)

	manager := realtime.NewManager(bus, log)
	verifier := webhook.NewVerifier(cfg.WebhookSecrets())

	// Scheduler and background jobs
	sched := scheduler.New(log)
	if cfg.SnapshotEnabled {
		if err := sched.AddJob(cfg.SnapshotSchedule, scheduler.NewDailySnapshotJob(snapshotSvc)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register daily snapshot job")
		}
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DB:       db,
		Cfg:      cfg,
		Accounts: accountsRepo,
		Holdings: holdingsRepo,
		Orders:   ordersSvc,
		Fills:    fillsSvc,
		Audit:    auditSvc,
		AuditRep: auditRepo,
		Snapshot: snapshotSvc,
		Realtime: manager,
		Verifier: verifier,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
