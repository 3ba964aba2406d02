package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/resguarit/ticketera-rg-sub002/internal/app"
	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/config"
	"github.com/resguarit/ticketera-rg-sub002/internal/events"
	"github.com/resguarit/ticketera-rg-sub002/internal/ledger"
	"github.com/resguarit/ticketera-rg-sub002/internal/lock"
	"github.com/resguarit/ticketera-rg-sub002/internal/storage/postgres"
	transporthttp "github.com/resguarit/ticketera-rg-sub002/internal/transport/http"
	"github.com/resguarit/ticketera-rg-sub002/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if err := run(cfg, log); err != nil {
		log.Fatalw("api exited", "error", err)
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	if cfg.IsDev() {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return err
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		return err
	}

	// Holds and per-type locks live in Redis when an address is configured,
	// in process memory otherwise.
	var (
		holdLedger ledger.Ledger
		locks      lock.Keyed
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(startupCtx).Err(); err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		holdLedger = ledger.NewRedis(rdb)
		locks = lock.NewRedis(rdb, lock.WithRedisWait(cfg.LockWait))
		log.Infow("hold ledger on redis", "addr", cfg.RedisAddr)
	} else {
		holdLedger = ledger.NewMemory()
		locks = lock.NewMemory(lock.WithWait(cfg.LockWait))
		log.Warnw("hold ledger in process memory, single instance only")
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := events.NewKafka(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		defer func() { _ = kafkaPub.Close() }()
		pub = kafkaPub
		log.Infow("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	clk := clock.NewSystem()
	typeRepo := postgres.NewTicketTypeRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	reservationSvc := app.NewReservationService(typeRepo, holdLedger, locks, clk, app.WithHoldTTL(cfg.HoldTTL))
	stageSvc := app.NewStageService(typeRepo, pub, clk, log)
	orderSvc := app.NewOrderService(orderRepo, holdLedger, locks, stageSvc, pub, clk, log)
	adminSvc := app.NewAdminService(typeRepo, clk)

	handler := transporthttp.NewRouter(transporthttp.RouterConfig{
		Reservations:   reservationSvc,
		Orders:         orderSvc,
		Admin:          adminSvc,
		Stages:         stageSvc,
		Logger:         log,
		AllowedOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Infow("api listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Infow("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	// Expired holds are ignored by every read path; the sweeper just keeps
	// the ledger from accumulating dead entries.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := holdLedger.Sweep(ctx, clk.Now()); err != nil {
					log.Warnw("ledger sweep", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infow("server stopped")
	return nil
}
