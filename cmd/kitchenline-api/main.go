// README: Entry point; loads config, wires stores and services, serves HTTP + WebSocket and runs background workers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"kitchenline/internal/config"
	httptransport "kitchenline/internal/http"
	"kitchenline/internal/infra"
	"kitchenline/internal/logging"
	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
	"kitchenline/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("kitchenline-api stopped")
	}
	logging.Info().Msg("kitchenline-api stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	checks := map[string]httptransport.HealthCheck{}
	var workers []func(context.Context) error

	var dbPool *pgxpool.Pool
	if cfg.Store.Driver == config.StorePostgres {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.DB.Migrate {
			dir, err := infra.MigrationsDir()
			if err != nil {
				return err
			}
			if err := infra.Migrate(ctx, pool, dir); err != nil {
				return err
			}
		}
		dbPool = pool
		checks["postgres"] = pool.Ping
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		redisClient = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var fb *infra.Firebase
	if cfg.Store.Driver == config.StoreFirebase || cfg.Firebase.Push {
		app, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.DatabaseURL, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		fb = app
	}

	var orderStore order.Store
	switch cfg.Store.Driver {
	case config.StorePostgres:
		orderStore = order.NewPGStore(dbPool)
	case config.StoreFirebase:
		client, err := fb.Database(ctx)
		if err != nil {
			return err
		}
		orderStore = order.NewFirebaseStore(client)
	default:
		orderStore = order.NewMemoryStore()
	}

	var locationRepo location.Repository = location.NewMemoryStore()
	if dbPool != nil && redisClient != nil {
		locationRepo = location.NewStore(dbPool, redisClient)
	}

	hub := realtime.NewHub()
	broadcaster := realtime.NewBroadcaster(hub)

	if cfg.AMQP.URL != "" {
		mq, err := infra.DialAMQP(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		defer mq.Close()
		if err := mq.DeclareFanout(cfg.AMQP.Exchange); err != nil {
			return err
		}
		mirror := notify.NewAMQPMirror(mq, cfg.AMQP.Exchange, 256)
		hub.SetMirror(mirror)
		workers = append(workers, mirror.Run)
		checks["amqp"] = func(context.Context) error { return mq.Ping() }
	}

	notifiers := order.Notifiers{broadcaster}
	// Device tokens come from the location service, which is built on top of orderSvc.
	var push *notify.DriverPush
	if cfg.Firebase.Push {
		sender, err := fb.Messaging(ctx)
		if err != nil {
			return err
		}
		push = notify.NewDriverPush(sender, nil, 64)
		notifiers = append(notifiers, push)
		workers = append(workers, push.Run)
	}

	orderSvc := order.NewService(orderStore, notifiers)
	locationSvc := location.NewService(locationRepo, orderSvc, broadcaster)
	if push != nil {
		push.SetTokens(locationSvc)
	}

	tz, err := cfg.Kitchen.Location()
	if err != nil {
		return err
	}
	scheduler := kitchen.NewScheduler(kitchen.Thresholds{
		WarningAfter:   cfg.Kitchen.WarningAfter,
		DangerAfter:    cfg.Kitchen.DangerAfter,
		CriticalWithin: cfg.Kitchen.CriticalWithin,
		UrgentWithin:   cfg.Kitchen.UrgentWithin,
	}, tz)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:         orderSvc,
		Locations:      locationSvc,
		Scheduler:      scheduler,
		Hub:            hub,
		Broadcaster:    broadcaster,
		AllowedOrigins: cfg.WS.AllowedOrigins,
		SendBuffer:     cfg.Hub.SendBuffer,
		Checks:         checks,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout)
	server.RegisterOnShutdown(hub.CloseAll)

	logging.Info().
		Str("store", cfg.Store.Driver).
		Bool("redis", redisClient != nil).
		Bool("amqp", cfg.AMQP.URL != "").
		Bool("push", push != nil).
		Msg("kitchenline-api starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	for _, w := range workers {
		g.Go(func() error {
			if err := w(gctx); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
