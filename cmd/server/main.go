package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/kitchen-order-service/internal/adapter/cache"
	"github.com/example/kitchen-order-service/internal/adapter/httpapi"
	"github.com/example/kitchen-order-service/internal/adapter/kafka"
	"github.com/example/kitchen-order-service/internal/adapter/natsstan"
	"github.com/example/kitchen-order-service/internal/adapter/repo"
	"github.com/example/kitchen-order-service/internal/clock"
	"github.com/example/kitchen-order-service/internal/config"
	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/example/kitchen-order-service/internal/logging"
	"github.com/example/kitchen-order-service/internal/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	orderCache, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher, subscriber, closeBroker, err := newBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBroker()

	orderRepo := repo.NewPostgresOrderRepo(pool, cfg.TxTimeout)
	clk := clock.NewSystem()

	var announcing sync.WaitGroup
	ucCreate := usecase.CreateOrders{Repo: orderRepo, Publisher: publisher, Clock: clk, Logger: logger, Pending: &announcing}
	ucSync := usecase.ApplyStatusChanges{Repo: orderRepo, Cache: orderCache, Clock: clk, Logger: logger}
	ucList := usecase.ListOrders{Repo: orderRepo, MaxLimit: cfg.MaxPageLimit}
	ucGet := usecase.GetOrderByID{Repo: orderRepo, Cache: orderCache}
	ucStatuses := usecase.ListStatuses{Repo: orderRepo}

	api := httpapi.NewServer(ucCreate, ucList, ucGet, ucStatuses, httpapi.Options{
		MaxBatchSize: cfg.MaxBatchSize,
		Logger:       logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("consuming status changes", "broker", cfg.Broker)
		if err := subscriber.Subscribe(gctx, ucSync.HandleMessage); err != nil {
			return fmt.Errorf("status consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	waitAnnouncements(&announcing, shutdownTimeout, logger)
	return err
}

// waitAnnouncements gives in-flight dispatch announcements a chance to reach
// the broker before it is closed.
func waitAnnouncements(wg *sync.WaitGroup, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("announcements still in flight at shutdown")
	}
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(startupCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := repo.EnsureSchema(startupCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return pool, nil
}

// newCache returns a nil cache for CACHE=none.
func newCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.OrderCache, func(), error) {
	switch cfg.Cache {
	case config.CacheMemory:
		return cache.NewMemoryOrderCache(cfg.CacheTTL), func() {}, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return cache.NewRedisOrderCache(client, "kitchen-orders", cfg.CacheTTL, logger), func() { _ = client.Close() }, nil
	case config.CacheNone:
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown cache %q", cfg.Cache)
}

func newBroker(cfg config.Config, logger *slog.Logger) (domain.EventPublisher, domain.MessageSubscriber, func(), error) {
	switch cfg.Broker {
	case config.BrokerStan:
		sc, lost, err := natsstan.Connect(cfg.Stan.ClusterID, cfg.Stan.ClientID, cfg.Stan.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		sub := &natsstan.Subscriber{
			Conn:           sc,
			ConnLost:       lost,
			Subject:        cfg.Stan.StatusSubject,
			Queue:          cfg.Stan.Queue,
			Durable:        cfg.Stan.Durable,
			AckWait:        cfg.Stan.AckWait,
			HandlerTimeout: cfg.HandlerTimeout,
			Logger:         logger,
		}
		return natsstan.NewPublisher(sc, cfg.Stan.DispatchSubject), sub, func() { _ = sc.Close() }, nil
	case config.BrokerKafka:
		w := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.DispatchTopic)
		sub := &kafka.Subscriber{
			Reader:         kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic, cfg.Kafka.GroupID),
			HandlerTimeout: cfg.HandlerTimeout,
			Logger:         logger,
		}
		return kafka.NewPublisher(w), sub, func() { _ = w.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
}
