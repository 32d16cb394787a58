package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/config"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/database"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/workers"
)

// init configures logging the same way the API server does
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the order worker: the only process that submits orders to the
// broker. It must use a gateway client id distinct from the job worker's.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	gateway, err := broker.New(cfg.Broker.Provider, broker.ConnectConfig{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		ClientID: cfg.Broker.ClientID + 1,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build broker gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retryCfg := broker.DefaultConnectRetry()
	if cfg.Broker.ConnectAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Broker.ConnectAttempts
	}
	if err := broker.ConnectWithRetries(ctx, gateway, retryCfg, zlog.Logger, nil); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to broker gateway")
	}
	defer gateway.Disconnect()
	// Request methods go through the breaker; submission and polling pass
	// straight through to the gateway.
	guarded := broker.NewBreakerGateway(gateway)

	accountDB := accounts.NewDatabase(db)
	contractDB := contracts.NewDatabase(db)
	resolver := contracts.NewResolver(contractDB)
	orderDB := orders.NewDatabase(db)
	jobQueue := jobs.NewQueue(db)
	heartbeats := workers.NewHeartbeats(db)

	worker := orders.NewWorker(orderDB, accountDB, resolver, guarded, jobQueue, heartbeats, zlog.Logger, orders.WorkerConfig{
		PollInterval:       cfg.Workers.OrderPollInterval,
		SubmitTimeout:      cfg.Workers.SubmitTimeout,
		StatusPollInterval: cfg.Workers.StatusPollInterval,
		MinDaysToExpiry:    cfg.Trading.MinDaysToExpiry,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Fatal().Err(err).Msg("Order worker failed")
	}
	zlog.Info().Msg("Order worker exiting")
}
