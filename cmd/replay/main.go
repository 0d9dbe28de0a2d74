// Command replay publishes archived dead letters back to Kafka.
//
//	replay [-cart <cart id>]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/config"
	"github.com/fjod/go_cart/cart-processor/internal/deadletter"
	"github.com/fjod/go_cart/cart-processor/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cartID := flag.String("cart", "", "replay only the letters of this cart")
	flag.Parse()

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
	n, err := run(cfg, log, *cartID)
	if err != nil {
		log.Error("replay stopped", zap.Int("replayed", n), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("replay finished", zap.Int("replayed", n))
	_ = log.Sync()
}

func run(cfg config.Config, log *zap.Logger, cartID string) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoDB, err := deadletter.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		return 0, errors.Wrap(err, "failed to connect to MongoDB")
	}
	store := deadletter.NewStore(mongoDB)
	defer store.Close(context.Background())

	replayer := deadletter.NewReplayer(store, log, cfg.Kafka.Brokers...)
	defer replayer.Close()

	return replayer.Replay(ctx, cartID)
}
