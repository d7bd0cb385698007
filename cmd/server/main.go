package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/handler"
	"github.com/makkenzo/device-license-service/internal/handler/middleware"
	"github.com/makkenzo/device-license-service/internal/service"
	"github.com/makkenzo/device-license-service/internal/storage/memstorage"
	"github.com/makkenzo/device-license-service/internal/storage/postgres"
	"github.com/makkenzo/device-license-service/internal/storage/redis"
	"github.com/makkenzo/device-license-service/internal/util"
	"github.com/makkenzo/device-license-service/internal/worker"
	"github.com/makkenzo/device-license-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		licenseRepo license.Repository
		companyRepo company.Repository
		dbPinger    handler.Pinger
	)

	switch cfg.Database.Driver {
	case "memory":
		sugarLogger.Warn("Using in-memory storage; all data is lost on restart")
		memCompanies := memstorage.NewCompanyRepository()
		demo := &company.Company{Name: "Demo Company", Username: "demo", CurrencySymbol: sql.NullString{String: "$", Valid: true}}
		memCompanies.Put(demo)
		sugarLogger.Infof("Seeded demo company %s", demo.ID)
		licenseRepo = memstorage.NewLicenseRepository(nil)
		companyRepo = memCompanies
	case "postgres", "":
		dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbPool.Close()
		licenseRepo = postgres.NewLicenseRepository(dbPool, appLogger)
		companyRepo = postgres.NewCompanyRepository(dbPool, appLogger)
		dbPinger = dbPool
	default:
		sugarLogger.Fatalf("Unknown database driver %q", cfg.Database.Driver)
	}

	var redisPinger handler.Pinger
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		redisPinger = redis.Pinger{Client: redisClient}
	}

	licenseService := service.NewLicenseService(licenseRepo, companyRepo, util.NewKeyGenerator(nil), cfg.Activation, nil, appLogger)
	activationService := service.NewActivationService(licenseRepo, companyRepo, nil, appLogger)
	authService, err := service.NewAuthService(cfg.JWT, cfg.Admin, nil, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to configure admin authentication: %v", err)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Health:       handler.NewHealthHandler(dbPinger, redisPinger, appLogger),
		Licenses:     handler.NewLicenseHandler(licenseService, activationService, appLogger),
		Activations:  handler.NewActivationHandler(activationService, appLogger),
		Auth:         handler.NewAuthHandler(authService, appLogger),
		AuthRequired: middleware.AuthMiddleware(authService, appLogger),
		AllowOrigins: cfg.CORS.AllowOrigins,
		Logger:       appLogger,
	})

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if cfg.Worker.Enabled && cfg.Redis.Addr != "" {
		g.Go(func() error {
			workerErrs, shutdownWorkers := worker.RunWorkers(cfg, licenseRepo, nil, appLogger)
			defer shutdownWorkers(context.Background())

			select {
			case <-groupCtx.Done():
				sugarLogger.Info("Asynq workers finished gracefully.")
				return nil
			case err := <-workerErrs:
				sugarLogger.Error("Asynq worker failed", zap.Error(err))
				return fmt.Errorf("asynq worker error: %w", err)
			}
		})
	} else {
		sugarLogger.Info("Background workers disabled (worker.enabled=false or no redis.addr)")
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
