package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// BroadcastArgs carries an admin broadcast to the worker.
type BroadcastArgs struct {
	Title            string   `json:"title"`
	Message          string   `json:"message"`
	NotificationKind string   `json:"kind,omitempty"`
	Channels         []string `json:"channels,omitempty"`
}

// Kind returns the job kind identifier for broadcasts.
func (BroadcastArgs) Kind() string { return "notification_broadcast" }

// InsertOpts disables retries: a retried broadcast would notify every user
// who already received the first attempt.
func (BroadcastArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
	}
}

// BroadcastArgsFromRequest converts a request to job args.
func BroadcastArgsFromRequest(req notification.BroadcastRequest) BroadcastArgs {
	args := BroadcastArgs{Title: req.Title, Message: req.Message, NotificationKind: string(req.Kind)}
	for _, ch := range req.Channels {
		args.Channels = append(args.Channels, string(ch))
	}
	return args
}

// Request converts args back to a broadcast request.
func (a BroadcastArgs) Request() notification.BroadcastRequest {
	req := notification.BroadcastRequest{Title: a.Title, Message: a.Message, Kind: notification.Kind(a.NotificationKind)}
	for _, ch := range a.Channels {
		req.Channels = append(req.Channels, notification.Channel(ch))
	}
	return req
}

// BroadcastWorker fans a broadcast out to every active user.
type BroadcastWorker struct {
	river.WorkerDefaults[BroadcastArgs]
	dispatcher *notification.Dispatcher
}

// NewBroadcastWorker creates a broadcast worker.
func NewBroadcastWorker(dispatcher *notification.Dispatcher) *BroadcastWorker {
	return &BroadcastWorker{dispatcher: dispatcher}
}

// Work runs the broadcast. Per-user failures are counted, not returned.
func (w *BroadcastWorker) Work(ctx context.Context, job *river.Job[BroadcastArgs]) error {
	if w == nil || w.dispatcher == nil {
		return fmt.Errorf("broadcast worker is not initialized")
	}
	res, err := w.dispatcher.Broadcast(ctx, job.Args.Request())
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	logger.Info("broadcast job completed",
		zap.Int64("job_id", job.ID),
		zap.Int("created", res.CreatedCount),
		zap.Int("failed", res.FailedCount),
	)
	return nil
}
