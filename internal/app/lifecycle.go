package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/jobs"
	"smartspray.io/notifier/internal/pkg/logger"
)

// Start starts background services: River workers on PostgreSQL, the
// in-process cleanup loop on SQLite, and the Redis live-push bridge.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}

	if a.SQLite != nil {
		n := a.Config.Notification
		err := a.Pools.SubmitDetached("general", func(ctx context.Context) {
			jobs.RunCleanupLoop(ctx, a.Store, n.RetentionDays, n.CleanupInterval)
		})
		if err != nil {
			return fmt.Errorf("start cleanup loop: %w", err)
		}
	}

	if a.Bridge != nil {
		err := a.Pools.SubmitDetached("general", func(ctx context.Context) {
			if err := a.Bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis live bridge stopped", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("start redis bridge: %w", err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down all application components. It is safe on
// a partially bootstrapped Application.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	// Cancels the cleanup loop and the bridge before their connections close.
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			logger.Warn("failed to close sqlite store", zap.Error(err))
		}
	}
}
