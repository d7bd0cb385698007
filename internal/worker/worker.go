package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/tasks"
	"go.uber.org/zap"
)

// RunWorkers starts the asynq server and the scheduler that enqueues the
// periodic grace scan. Errors from either are delivered on the returned channel.
func RunWorkers(cfg *config.Config, repo license.Repository, now func() time.Time, logger *zap.Logger) (<-chan error, func(context.Context)) {
	errChan := make(chan error, 4)

	redisConnOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	schedule := cfg.Worker.GraceScanSchedule
	if schedule == "" {
		schedule = "@every 1h"
	}

	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log := logger.Named("AsynqServerErrorHandler")
				log.Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)

			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	mux := asynq.NewServeMux()

	graceScanHandler := tasks.NewLicenseGraceScanHandler(repo, now, logger)
	mux.HandleFunc(tasks.TypeLicenseGraceScan, graceScanHandler.ProcessTask)

	go func() {
		logger.Info("Starting Asynq Server...")
		if err := srv.Run(mux); err != nil {
			logger.Error("Asynq Server run failed", zap.Error(err))
			errChan <- fmt.Errorf("asynq server error: %w", err)
		}
		logger.Info("Asynq Server stopped.")
	}()

	scheduler := asynq.NewScheduler(
		redisConnOpts,
		&asynq.SchedulerOpts{
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)

	graceScanTask, err := tasks.NewLicenseGraceScanTask()
	if err != nil {
		logger.Error("Failed to create grace scan task for scheduler", zap.Error(err))
		errChan <- fmt.Errorf("scheduler task creation error: %w", err)

	} else {

		entryID, err := scheduler.Register(schedule, graceScanTask)

		if err != nil {
			logger.Error("Could not register periodic grace scan", zap.Error(err))
			errChan <- fmt.Errorf("scheduler registration error: %w", err)
		} else {
			logger.Info("Registered periodic grace scan", zap.String("entry_id", entryID), zap.String("schedule", schedule))
		}
	}

	go func() {
		logger.Info("Starting Asynq Scheduler...")
		if err := scheduler.Run(); err != nil {
			logger.Error("Asynq Scheduler run failed", zap.Error(err))
			errChan <- fmt.Errorf("asynq scheduler error: %w", err)
		}
		logger.Info("Asynq Scheduler stopped.")
	}()

	shutdownFunc := func(ctx context.Context) {
		logger.Info("Shutting down Asynq Scheduler...")
		scheduler.Shutdown()
		logger.Info("Asynq Scheduler stopped.")

		logger.Info("Shutting down Asynq Server...")
		srv.Shutdown()
		logger.Info("Asynq Server stopped.")
	}

	return errChan, shutdownFunc
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
