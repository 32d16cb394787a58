package main

import (
	"context"
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
	"github.com/ksred/desk-api/internal/positions"
	"github.com/ksred/desk-api/internal/pretrade"
	"github.com/ksred/desk-api/internal/watchlists"
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

// main runs the background job worker: it claims queued jobs and runs the
// registered handler for each job type. Orders are NOT processed here; the
// order worker is its own process with its own gateway client id.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	once := flag.Bool("once", false, "drain the currently eligible jobs and exit")
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
		ClientID: cfg.Broker.ClientID,
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
	guarded := broker.NewBreakerGateway(gateway)

	accountDB := accounts.NewDatabase(db)
	contractDB := contracts.NewDatabase(db)
	queue := jobs.NewQueue(db)
	heartbeats := workers.NewHeartbeats(db)
	checker := pretrade.NewChecker(contractDB, accountDB, guarded, zlog.Logger)
	watchlistService := watchlists.NewService(db, guarded, zlog.Logger)

	worker := jobs.NewWorker(queue, heartbeats, cfg.Workers.JobPollInterval)

	worker.Register(jobs.TypePositionsSync, func(ctx context.Context, _ jobs.Payload) (interface{}, error) {
		count, err := positions.SyncOnce(ctx, db, guarded)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"positions": count}, nil
	})

	worker.Register(jobs.TypeContractsSync, func(ctx context.Context, payload jobs.Payload) (interface{}, error) {
		p := payload.(jobs.ContractsSyncPayload)
		specs := p.Specs
		if len(specs) == 0 {
			specs = jobs.DefaultContractsSyncSpecs()
		}
		return contracts.SyncCatalog(ctx, db, guarded, specs)
	})

	worker.Register(jobs.TypePretradeCheck, func(ctx context.Context, payload jobs.Payload) (interface{}, error) {
		p := payload.(jobs.PretradeCheckPayload)
		return checker.Run(ctx, pretrade.Request{
			ConID:     p.ConID,
			Side:      p.Side,
			Quantity:  p.Quantity,
			AccountID: p.AccountID,
		})
	})

	worker.Register(jobs.TypeWatchlistQuotes, func(ctx context.Context, payload jobs.Payload) (interface{}, error) {
		p := payload.(jobs.WatchlistQuotesPayload)
		updated, err := watchlistService.RefreshQuotes(ctx, p.WatchListID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"updated": updated}, nil
	})

	if *once {
		processed, err := worker.RunOnce(ctx)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Job pass failed")
		}
		zlog.Info().Int("processed", processed).Msg("Job pass complete")
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		worker.Run(groupCtx)
		return nil
	})
	if err := group.Wait(); err != nil {
		zlog.Fatal().Err(err).Msg("Job worker failed")
	}
	zlog.Info().Msg("Job worker exiting")
}
