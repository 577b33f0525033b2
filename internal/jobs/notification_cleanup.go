package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// NotificationCleanupArgs is a periodic maintenance job that purges
// non-critical notifications past the retention window.
type NotificationCleanupArgs struct{}

// Kind returns the job kind identifier for periodic notification cleanup.
func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: CleanupInterval,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// NotificationCleanupWorker runs notification.Cleanup against the store.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	store         notification.Store
	retentionDays int
}

// NewNotificationCleanupWorker creates a cleanup worker. Non-positive
// retention falls back to notification.DefaultRetentionDays.
func NewNotificationCleanupWorker(store notification.Store, retentionDays int) *NotificationCleanupWorker {
	if retentionDays <= 0 {
		retentionDays = notification.DefaultRetentionDays
	}
	return &NotificationCleanupWorker{store: store, retentionDays: retentionDays}
}

// Work purges expired rows.
func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("notification cleanup worker is not initialized")
	}
	if _, err := notification.Cleanup(ctx, w.store, w.retentionDays); err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	return nil
}

// RunCleanupLoop purges once immediately and then every interval until ctx
// ends. It stands in for the periodic River job when River is not running.
func RunCleanupLoop(ctx context.Context, store notification.Store, retentionDays int, interval time.Duration) {
	if interval <= 0 {
		interval = CleanupInterval
	}
	run := func() {
		if _, err := notification.Cleanup(ctx, store, retentionDays); err != nil && ctx.Err() == nil {
			logger.Error("notification cleanup failed", zap.Error(err))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
