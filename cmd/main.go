package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/cart-processor/internal/cache"
	"github.com/fjod/go_cart/cart-processor/internal/config"
	"github.com/fjod/go_cart/cart-processor/internal/consumer"
	"github.com/fjod/go_cart/cart-processor/internal/deadletter"
	"github.com/fjod/go_cart/cart-processor/internal/logger"
	"github.com/fjod/go_cart/cart-processor/internal/ops"
	"github.com/fjod/go_cart/cart-processor/internal/processor"
	"github.com/fjod/go_cart/cart-processor/internal/repository"
	"github.com/fjod/go_cart/cart-processor/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("cart processor stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("cart processor stopped")
	_ = log.Sync()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.DBName,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		return err
	}
	log.Info("connected to postgres", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.DBName))

	mongoDB, err := deadletter.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return err
	}
	letters := deadletter.NewStore(mongoDB)
	defer letters.Close(context.Background())
	if err := letters.CreateIndexes(ctx); err != nil {
		return err
	}
	log.Info("connected to mongodb", zap.String("db", cfg.Mongo.DBName))

	checks := map[string]ops.Pinger{
		"postgres": repo,
		"mongo":    letters,
	}

	var snapshots cache.CartCache
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		redisCache := cache.NewRedisCache(redisClient, cfg.Redis.TTL)
		snapshots = redisCache
		checks["redis"] = redisCache
		log.Info("redis ping succeeded", zap.String("addr", cfg.Redis.Addr))
	}

	store := repository.NewBreakerStore(repo, repository.BreakerSettings{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		ConsecutiveFails: cfg.Breaker.ConsecutiveFails,
	}, log)

	dispatcher := processor.NewDispatcher(
		service.NewCartHandler(store),
		service.NewCouponHandler(store),
		service.NewTotalCalculator(store),
		snapshots,
	)

	consumerCfg := consumer.Config{
		Brokers:       cfg.Kafka.Brokers,
		Topics:        cfg.Kafka.Topics,
		GroupID:       cfg.Kafka.GroupID,
		MaxAttempts:   cfg.Kafka.MaxAttempts,
		RetryBackoff:  cfg.Kafka.RetryBackoff,
		RetryNotFound: cfg.Kafka.RetryNotFound,
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Kafka.Workers; i++ {
		c := consumer.NewConsumer(consumerCfg, dispatcher, letters, log.With(zap.Int("worker", i)))
		defer c.Close()
		g.Go(func() error {
			return c.Run(ctx)
		})
	}

	server := ops.NewServer(cfg.Ops.Port, checks, log)
	g.Go(func() error {
		return server.Run(ctx, cfg.Kafka.ShutdownTimeout)
	})

	log.Info("cart processor started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("group_id", cfg.Kafka.GroupID),
		zap.Int("workers", cfg.Kafka.Workers))

	return g.Wait()
}
