// Package app is the composition root: it wires the store, providers,
// dispatcher, live hub and job queue behind the HTTP router.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/api/handlers"
	"smartspray.io/notifier/internal/api/middleware"
	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/infrastructure"
	"smartspray.io/notifier/internal/jobs"
	"smartspray.io/notifier/internal/live"
	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
	"smartspray.io/notifier/internal/pkg/worker"
	"smartspray.io/notifier/internal/provider"
	"smartspray.io/notifier/internal/repository"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	Pools  *worker.Pools
	Hub    *live.Hub

	// DB is set on the PostgreSQL backend; SQLite is set otherwise.
	DB     *infrastructure.DatabaseClients
	SQLite *repository.SQLiteStore

	Store notification.Store

	Redis  *redis.Client
	Bridge *live.RedisBridge
}

// storage is what both repository backends provide.
type storage interface {
	notification.Store
	notification.UserDirectory
	Ping(ctx context.Context) error
}

// Bootstrap initializes all dependencies. On failure everything already
// opened is closed again.
func Bootstrap(ctx context.Context, cfg *config.Config) (app *Application, err error) {
	app = &Application{Config: cfg}
	defer func() {
		if err != nil {
			app.Shutdown()
			app = nil
		}
	}()

	store, err := app.openStore(ctx)
	if err != nil {
		return app, err
	}
	app.Store = store

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DeliveryPoolSize: cfg.Worker.DeliveryPoolSize,
	})
	if err != nil {
		return app, fmt.Errorf("init worker pools: %w", err)
	}
	app.Pools = pools

	senders, err := provider.NewSenders(cfg.Providers)
	if err != nil {
		return app, fmt.Errorf("init providers: %w", err)
	}

	checks := map[string]handlers.Pinger{"store": store}

	app.Hub = live.NewHub()
	if cfg.Redis.Addr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.Bridge = live.NewRedisBridge(app.Redis, cfg.Redis.Channel, app.Hub)
		app.Hub.SetRelay(app.Bridge)
		checks["redis"] = redisPinger{app.Redis}
		logger.Info("live push relayed through redis",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("channel", cfg.Redis.Channel),
		)
	}

	dispatcher := notification.NewDispatcher(store, store, senders,
		notification.WithPool(pools.Delivery),
		notification.WithPusher(app.Hub),
		notification.WithSendTimeout(cfg.Notification.SendTimeout),
	)

	var broadcasts handlers.BroadcastEnqueuer
	if app.DB != nil {
		workers := river.NewWorkers()
		jobs.RegisterWorkers(workers, jobs.Deps{
			Store:         store,
			Dispatcher:    dispatcher,
			RetentionDays: cfg.Notification.RetentionDays,
		})
		if err := app.DB.InitRiverClient(workers, jobs.PeriodicJobs(), cfg.River); err != nil {
			return app, fmt.Errorf("init river: %w", err)
		}
		broadcasts = jobs.NewEnqueuer(app.DB.RiverClient)
	}

	server := handlers.NewServer(handlers.ServerDeps{
		Store:          store,
		Dispatcher:     dispatcher,
		Hub:            app.Hub,
		Broadcasts:     broadcasts,
		Checks:         checks,
		Metrics:        pools.Metrics,
		RecentLimit:    cfg.Notification.RecentLimit,
		RetentionDays:  cfg.Notification.RetentionDays,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	app.Router = newRouter(cfg, server, middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
	})
	return app, nil
}

func (a *Application) openStore(ctx context.Context) (storage, error) {
	cfg := a.Config.Database
	if cfg.IsSQLite() {
		store, err := repository.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.SQLite = store
		logger.Info("Using SQLite store", zap.String("path", cfg.SQLitePath))
		return store, nil
	}

	db, err := infrastructure.NewDatabaseClients(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = db
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return repository.NewPostgresStore(db.Pool), nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
