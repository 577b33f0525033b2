// Package worker provides goroutine pool management.
//
// Background and per-request fan-out work goes through a Pool with context
// propagation and unified panic recovery. A goroutine tied to the lifetime
// of one connection, such as a WebSocket read pump, is started directly:
// it would otherwise pin a pool slot for as long as the client stays.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/pkg/logger"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverload is returned when a pool has no free worker and no room
	// left to wait for one.
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
//
// General runs detached background work (live-push relay, cleanup loop).
// Submitters wait for a free worker, but at most GeneralPoolSize of them.
// Delivery runs per-channel provider sends and never blocks the submitter:
// a saturated pool rejects the send with ErrPoolOverload.
type Pools struct {
	General  *Pool
	Delivery *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool sizes.
type PoolConfig struct {
	GeneralPoolSize  int
	DeliveryPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:  50,
		DeliveryPoolSize: 100,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(max(cfg.GeneralPoolSize, 1)),
		ants.WithExpiryDuration(30*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	deliveryAnts, err := ants.NewPool(cfg.DeliveryPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Delivery:      &Pool{pool: deliveryAnts, name: "delivery"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task. If ctx is already cancelled the task
// is not submitted and ctx.Err() is returned.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		select {
		case <-ctx.Done():
			logger.Debug("task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	return translate(err)
}

func translate(err error) error {
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverload
	}
	return err
}

// SubmitDetached submits a background task bound to the service lifecycle
// context instead of a request context. It survives request cancellation but
// stops on Shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool := p.General
	if poolName == p.Delivery.name {
		pool = p.Delivery
	}

	err := pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("detached task skipped: service shutting down",
				zap.String("pool", pool.name),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
	return translate(err)
}

// Shutdown cancels the service context then waits for running tasks (max 30s per pool).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("general pool shutdown timeout", zap.Error(err))
	}
	if err := p.Delivery.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("delivery pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool occupancy for the readiness endpoint.
func (p *Pools) Metrics() map[string]map[string]int {
	return map[string]map[string]int{
		p.General.name:  stats(p.General.pool),
		p.Delivery.name: stats(p.Delivery.pool),
	}
}

func stats(pool *ants.Pool) map[string]int {
	return map[string]int{
		"running": pool.Running(),
		"free":    pool.Free(),
		"cap":     pool.Cap(),
	}
}
