package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/auth"
	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/config"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/database"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/positions"
	"github.com/ksred/desk-api/internal/tradebot"
	"github.com/ksred/desk-api/internal/watchlists"
	"github.com/ksred/desk-api/internal/workers"
	"github.com/ksred/desk-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the desk API server with graceful shutdown
// support. Order submission and job execution happen in the separate worker
// processes; the server only reads and queues.
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
		ClientID: cfg.Broker.ClientID,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build broker gateway")
	}

	connectCtx, connectCancel := context.WithCancel(context.Background())
	defer connectCancel()
	retryCfg := broker.DefaultConnectRetry()
	if cfg.Broker.ConnectAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Broker.ConnectAttempts
	}
	if err := broker.ConnectWithRetries(connectCtx, gateway, retryCfg, zlog.Logger, nil); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to broker gateway")
	}
	defer gateway.Disconnect()
	guarded := broker.NewBreakerGateway(gateway)

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Server.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	accountDB := accounts.NewDatabase(db)
	contractDB := contracts.NewDatabase(db)
	resolver := contracts.NewResolver(contractDB)
	positionDB := positions.NewDatabase(db)
	orderDB := orders.NewDatabase(db)
	jobQueue := jobs.NewQueue(db)
	heartbeats := workers.NewHeartbeats(db)
	watchlistService := watchlists.NewService(db, guarded, zlog.Logger)
	tools := tradebot.NewTools(contractDB, resolver, accountDB, positionDB, orderDB, jobQueue, zlog.Logger)

	accountHandlers := accounts.NewGinHandlers(accountDB)
	contractHandlers := contracts.NewGinHandlers(contractDB, resolver)
	positionHandlers := positions.NewGinHandlers(positionDB, accountDB)
	orderHandlers := orders.NewGinHandlers(orderDB, accountDB)
	jobHandlers := jobs.NewGinHandlers(jobQueue)
	workerHandlers := workers.NewGinHandlers(heartbeats)
	watchlistHandlers := watchlists.NewGinHandlers(watchlistService, jobQueue)
	tradebotHandlers := tradebot.NewGinHandlers(tools)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Server.JWTSecret,
		authHandlers, accountHandlers, contractHandlers, positionHandlers,
		orderHandlers, jobHandlers, workerHandlers, watchlistHandlers, tradebotHandlers)

	// Create server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}


// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - All other /api/v1 routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	accountHandlers *accounts.GinHandlers,
	contractHandlers *contracts.GinHandlers,
	positionHandlers *positions.GinHandlers,
	orderHandlers *orders.GinHandlers,
	jobHandlers *jobs.GinHandlers,
	workerHandlers *workers.GinHandlers,
	watchlistHandlers *watchlists.GinHandlers,
	tradebotHandlers *tradebot.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			protected.GET("/accounts", accountHandlers.ListAccountsHandler())
			protected.GET("/positions", positionHandlers.ListPositionsHandler())

			contractsGroup := protected.Group("/contracts")
			{
				contractsGroup.GET("", contractHandlers.ListContractsHandler())
				contractsGroup.POST("/resolve", contractHandlers.ResolveHandler())
			}

			ordersGroup := protected.Group("/orders")
			{
				ordersGroup.POST("", orderHandlers.CreateOrderHandler())
				ordersGroup.GET("", orderHandlers.ListOrdersHandler())
				ordersGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
				ordersGroup.GET("/:order_id/events", orderHandlers.OrderEventsHandler())
				ordersGroup.POST("/:order_id/cancel", orderHandlers.CancelOrderHandler())
			}

			jobsGroup := protected.Group("/jobs")
			{
				jobsGroup.POST("", jobHandlers.EnqueueJobHandler())
				jobsGroup.GET("", jobHandlers.ListJobsHandler())
				jobsGroup.GET("/:job_id", jobHandlers.GetJobHandler())
				jobsGroup.POST("/:job_id/rerun", jobHandlers.RerunJobHandler())
				jobsGroup.POST("/:job_id/archive", jobHandlers.ArchiveJobHandler())
			}

			protected.GET("/workers", workerHandlers.ListHeartbeatsHandler())

			watchlistsGroup := protected.Group("/watchlists")
			{
				watchlistsGroup.POST("", watchlistHandlers.CreateListHandler())
				watchlistsGroup.GET("", watchlistHandlers.ListListsHandler())
				watchlistsGroup.PUT("/reorder", watchlistHandlers.ReorderListsHandler())
				watchlistsGroup.GET("/:list_id", watchlistHandlers.GetListHandler())
				watchlistsGroup.PATCH("/:list_id", watchlistHandlers.UpdateListHandler())
				watchlistsGroup.DELETE("/:list_id", watchlistHandlers.DeleteListHandler())
				watchlistsGroup.POST("/:list_id/instruments", watchlistHandlers.AddInstrumentHandler())
				watchlistsGroup.DELETE("/:list_id/instruments/:instrument_id", watchlistHandlers.RemoveInstrumentHandler())
				watchlistsGroup.POST("/:list_id/quotes/refresh", watchlistHandlers.RefreshQuotesHandler())
			}

			tradebotGroup := protected.Group("/tradebot")
			{
				tradebotGroup.POST("/preview-order", tradebotHandlers.PreviewOrderHandler())
				tradebotGroup.POST("/queue-order", tradebotHandlers.QueueOrderHandler())
				tradebotGroup.GET("/positions", tradebotHandlers.ListPositionsHandler())
				tradebotGroup.GET("/orders", tradebotHandlers.ListOrdersHandler())
				tradebotGroup.GET("/jobs", tradebotHandlers.ListJobsHandler())
				tradebotGroup.GET("/contracts", tradebotHandlers.ListContractsHandler())
			}
		}
	}
}
