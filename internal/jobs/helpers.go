// Package jobs defines River job types for notification maintenance and
// asynchronous broadcast.
//
// River runs on the PostgreSQL backend only. With SQLite the cleanup job is
// replaced by RunCleanupLoop and broadcasts run on the general worker pool.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"smartspray.io/notifier/internal/notification"
)

// CleanupInterval is how often the periodic cleanup job is scheduled.
const CleanupInterval = 24 * time.Hour

// Deps are the services job workers call into.
type Deps struct {
	Store         notification.Store
	Dispatcher    *notification.Dispatcher
	RetentionDays int
}

// RegisterWorkers adds every worker in this package to workers.
func RegisterWorkers(workers *river.Workers, deps Deps) {
	river.AddWorker(workers, NewNotificationCleanupWorker(deps.Store, deps.RetentionDays))
	river.AddWorker(workers, NewBroadcastWorker(deps.Dispatcher))
}

// PeriodicJobs returns the jobs River schedules on its own.
func PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(CleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return NotificationCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Enqueuer inserts notification jobs through a River client.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

// NewEnqueuer wraps client.
func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueBroadcast inserts a broadcast job and returns its id.
func (e *Enqueuer) EnqueueBroadcast(ctx context.Context, req notification.BroadcastRequest) (int64, error) {
	res, err := e.client.Insert(ctx, BroadcastArgsFromRequest(req), nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue broadcast: %w", err)
	}
	return res.Job.ID, nil
}
