package notification

import (
	"context"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/pkg/logger"
)

// DefaultRetentionDays is how long non-critical notifications are kept.
const DefaultRetentionDays = 30

// Cleanup purges non-critical notifications older than retentionDays.
// Critical notifications are never purged. A non-positive retentionDays
// means DefaultRetentionDays.
func Cleanup(ctx context.Context, store Store, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	deleted, err := store.PurgeExpired(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	logger.Info("notification cleanup completed",
		zap.Int("deleted", deleted),
		zap.Int("retention_days", retentionDays),
	)
	return deleted, nil
}
