package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/artifact"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/breaker"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/config"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/connectivity"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/handler"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/infra/sqlite"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/infra/sqlite/migrations"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/observability"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/remote"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/repository"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/service"
	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("edge-agent exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("sqlite initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sqlite underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	records := repository.NewGormRecordRepo(db)
	attempts := repository.NewGormSyncAttemptRepo(db)

	monitor := connectivity.NewMonitor(
		connectivity.DialProbe(cfg.ProbeAddress, cfg.ProbeTimeout()),
		cfg.ProbeTTL(),
		logger,
	)

	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout(),
	}, logger)

	httpClient, err := remote.NewHTTPClient(cfg.CloudBaseURL, cfg.CloudAPIKey)
	if err != nil {
		return fmt.Errorf("remote client initialization failed: %w", err)
	}
	cloud := remote.NewGuarded(httpClient, breakers)

	artifacts, err := artifact.NewManager(records, logger)
	if err != nil {
		return fmt.Errorf("artifact manager initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()

	replicator, err := service.NewReplicator(records, attempts, cloud, artifacts, nil, service.ReplicatorConfig{
		MaxRetries:     cfg.MaxRetries,
		BaseRetryDelay: cfg.BaseRetryDelay(),
		MaxRetryDelay:  cfg.MaxRetryDelay(),
	}, logger)
	if err != nil {
		return fmt.Errorf("replicator initialization failed: %w", err)
	}
	replicator.SetMetrics(metrics)

	orchestrator, err := service.NewOrchestrator(records, monitor, breakers, replicator, cfg.DeviceID, cfg.InlineTimeout(), logger)
	if err != nil {
		return fmt.Errorf("orchestrator initialization failed: %w", err)
	}
	orchestrator.SetMetrics(metrics)

	worker, err := service.NewWorker(records, monitor, replicator, breakers, service.WorkerConfig{
		Interval:          cfg.SyncInterval(),
		BatchSize:         cfg.SyncBatchSize,
		Parallelism:       cfg.SyncParallelism,
		StaleClaimTimeout: cfg.StaleClaimTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	worker.SetMetrics(metrics)

	status, err := service.NewStatus(records, breakers)
	if err != nil {
		return fmt.Errorf("status service initialization failed: %w", err)
	}

	recovery, err := service.NewRecovery(records, logger)
	if err != nil {
		return fmt.Errorf("recovery initialization failed: %w", err)
	}
	if recovered, err := recovery.Run(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	} else if recovered > 0 {
		logger.Info("startup recovery requeued records", zap.Int("count", recovered))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterRecordRoutes(app, orchestrator, artifacts); err != nil {
		return fmt.Errorf("record route registration failed: %w", err)
	}
	if err := handler.RegisterSyncRoutes(app, status, worker); err != nil {
		return fmt.Errorf("sync route registration failed: %w", err)
	}

	logger.Info("edge-agent started",
		zap.String("deviceId", cfg.DeviceID),
		zap.Int("port", cfg.APIPort),
	)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("edge-agent stopped")
	return nil
}
