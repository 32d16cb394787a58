package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/auth"
	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/database"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/workers"
	"github.com/ksred/desk-api/pkg/middleware"
)

const (
	minOrders     = 10
	maxOrders     = 60
	numClients    = 5
	serverAddress = "http://localhost:8080"
	simAccount    = "SIM001"
	simSecret     = "simulation-secret-key"
)

var sides = []string{"BUY", "SELL"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the desk API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"create": {name: "Queue Order"},
			"get":    {name: "Get Order"},
			"events": {name: "Order Events"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// queueOrder submits a new order to the API and returns its id
func (sc *simulationClient) queueOrder(side string, quantity int) (uint, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	payload := map[string]interface{}{
		"account":  simAccount,
		"symbol":   "CL",
		"sec_type": "FUT",
		"side":     side,
		"quantity": quantity,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Queue order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("queue order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool         `json:"success"`
		Data    orders.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if result.Data.ID == 0 {
		return 0, fmt.Errorf("no order id in response: %s", string(respBody))
	}

	return result.Data.ID, nil
}

// getOrder retrieves the current state of an order
func (sc *simulationClient) getOrder(orderID uint) (*orders.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["get"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%d", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool         `json:"success"`
		Data    orders.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return &result.Data, nil
}

// countEvents retrieves the audit-trail length for an order
func (sc *simulationClient) countEvents(orderID uint) (int, error) {
	start := time.Now()
	defer func() {
		sc.stats["events"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%d/events", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("order events failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                `json:"success"`
		Data    []orders.OrderEvent `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, err
	}
	return len(result.Data), nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the desk simulation end to end: it starts the API server, the
// order worker and the job worker in-process against a scripted mock gateway,
// queues a random batch of CL orders over HTTP, and waits for the order
// worker to drive every one to a terminal status.
func main() {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer os.Remove("simulation.db")

	mock := broker.NewMockGateway()
	seedGateway(mock)
	if err := seedDesk(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed database")
	}
	if err := mock.Connect(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect mock gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the API server in a goroutine
	go func() {
		if err := startServer(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Start the order worker and job worker in-process
	orderWorker := orders.NewWorker(
		orders.NewDatabase(db),
		accounts.NewDatabase(db),
		contracts.NewResolver(contracts.NewDatabase(db)),
		mock,
		jobs.NewQueue(db),
		workers.NewHeartbeats(db),
		log.Logger,
		orders.WorkerConfig{
			PollInterval:       200 * time.Millisecond,
			StatusPollInterval: 50 * time.Millisecond,
			SubmitTimeout:      5 * time.Second,
		},
	)
	go orderWorker.Run(ctx)

	jobWorker := jobs.NewWorker(jobs.NewQueue(db), workers.NewHeartbeats(db), 200*time.Millisecond)
	jobWorker.Register(jobs.TypePositionsSync, func(ctx context.Context, _ jobs.Payload) (interface{}, error) {
		// Positions sync against the mock returns the scripted book.
		return map[string]interface{}{"positions": len(mock.PositionList)}, nil
	})
	go jobWorker.Run(ctx)

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	ordersChan := make(chan uint, targetOrders)
	var wg sync.WaitGroup

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			queueOrdersHTTP(clientID, targetOrders/numClients, simClient, ordersChan)
		}(i)
	}

	wg.Wait()
	close(ordersChan)

	var orderIDs []uint
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}
	log.Info().Int("orders_queued", len(orderIDs)).Msg("All orders queued")

	stats := struct {
		TotalOrders  int
		FilledOrders int
		FailedOrders int
		TimedOut     int
		TotalFilled  float64
		TotalEvents  int
		StartTime    time.Time
		Sides        map[string]int
	}{
		TotalOrders: len(orderIDs),
		StartTime:   time.Now(),
		Sides:       make(map[string]int),
	}

	// Poll every order until the worker drives it terminal
	deadline := time.Now().Add(60 * time.Second)
	for _, orderID := range orderIDs {
		var final *orders.Order
		for time.Now().Before(deadline) {
			order, err := simClient.getOrder(orderID)
			if err != nil {
				log.Error().Err(err).Uint("order_id", orderID).Msg("Failed to fetch order")
				break
			}
			if order.Terminal() {
				final = order
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if final == nil {
			stats.TimedOut++
			continue
		}

		switch final.Status {
		case orders.StatusFilled:
			stats.FilledOrders++
			stats.TotalFilled += final.FilledQuantity
		default:
			stats.FailedOrders++
		}
		stats.Sides[final.Side]++

		events, err := simClient.countEvents(orderID)
		if err == nil {
			stats.TotalEvents += events
		}

		log.Info().
			Uint("order_id", orderID).
			Str("status", final.Status).
			Float64("filled", final.FilledQuantity).
			Int("events", events).
			Msg("Order terminal")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("DESK SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:   %d
Filled:         %d
Failed:         %d
Still Working:  %d
Contracts Done: %.0f
Audit Events:   %d
Duration:       %v

Side Distribution
-----------------
`, stats.TotalOrders, stats.FilledOrders, stats.FailedOrders, stats.TimedOut,
		stats.TotalFilled, stats.TotalEvents, duration.Round(time.Millisecond))

	for side, count := range stats.Sides {
		barLength := 0
		if stats.TotalOrders > 0 {
			barLength = int(float64(count) / float64(stats.TotalOrders) * 20)
		}
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := 0.0
	if stats.TotalOrders > 0 {
		successRate = float64(stats.FilledOrders) / float64(stats.TotalOrders) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("total_orders", stats.TotalOrders).
		Int("filled_orders", stats.FilledOrders).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// queueOrdersHTTP generates and submits random orders to the API
// Runs as a client goroutine, sending queued order ids to ordersChan
func queueOrdersHTTP(clientID, numOrders int, simClient *simulationClient, ordersChan chan<- uint) {
	for i := 0; i < numOrders; i++ {
		side := sides[rand.Intn(len(sides))]
		quantity := rand.Intn(5) + 1

		orderID, err := simClient.queueOrder(side, quantity)
		if err != nil {
			simClient.stats["create"].failures++
			log.Error().Err(err).Int("client_id", clientID).Msg("Failed to queue order")
			continue
		}

		ordersChan <- orderID
		log.Info().
			Int("client_id", clientID).
			Uint("order_id", orderID).
			Str("side", side).
			Int("quantity", quantity).
			Msg("Order queued")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// seedGateway scripts the mock with a small CL desk: one managed account,
// qualified front-month contracts, and a fill script for every order placed.
func seedGateway(mock *broker.MockGateway) {
	mock.Accounts = []string{simAccount}

	frontMonth := time.Now().UTC().AddDate(0, 2, 0)
	expiry := time.Date(frontMonth.Year(), frontMonth.Month(), 20, 0, 0, 0, 0, time.UTC)
	contract := broker.Contract{
		ConID:          217001,
		Symbol:         "CL",
		SecType:        "FUT",
		Exchange:       "NYMEX",
		Currency:       "USD",
		LocalSymbol:    "CLZ",
		TradingClass:   "CL",
		ContractExpiry: expiry.Format("20060102"),
		Multiplier:     "1000",
	}
	mock.QualifyResults[contract.ConID] = &contract

	// Pre-script fills for every broker order id the run can allocate.
	for id := int64(1001); id <= 2000; id++ {
		mock.OrderSnapshots[id] = []broker.OrderSnapshot{
			{Status: "Submitted", Filled: 0, Remaining: 1},
			{Status: "Filled", Filled: 1, Remaining: 0, AvgFillPrice: 78.4, Done: true},
		}
	}
}

// seedDesk inserts the simulation account and the catalog rows the resolver
// picks the front month from.
func seedDesk(db *gorm.DB) error {
	var accountID map[string]uint
	err := db.Transaction(func(tx *gorm.DB) error {
		ids, err := accounts.GetOrCreate(tx, []string{simAccount})
		accountID = ids
		return err
	})
	if err != nil {
		return err
	}
	if len(accountID) == 0 {
		return fmt.Errorf("no account created")
	}

	now := time.Now().UTC()
	frontMonth := now.AddDate(0, 2, 0)
	expiry := time.Date(frontMonth.Year(), frontMonth.Month(), 20, 0, 0, 0, 0, time.UTC)
	ref := contracts.ContractRef{
		ConID:          217001,
		Symbol:         "CL",
		SecType:        "FUT",
		Exchange:       "NYMEX",
		Currency:       "USD",
		LocalSymbol:    "CLZ",
		TradingClass:   "CL",
		ContractMonth:  expiry.Format("2006-01"),
		ContractExpiry: expiry.Format("20060102"),
		Multiplier:     "1000",
		IsActive:       true,
		FetchedAt:      now,
	}
	return db.Create(&ref).Error
}

// startServer initializes and starts the desk API server
// Sets up all required services, handlers and routes
func startServer(db *gorm.DB) error {
	authService := auth.NewService(simSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)
	authHandlers := auth.NewGinHandlers(authService)

	accountDB := accounts.NewDatabase(db)
	orderDB := orders.NewDatabase(db)
	orderHandlers := orders.NewGinHandlers(orderDB, accountDB)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(simSecret))
		{
			protected.POST("/orders", orderHandlers.CreateOrderHandler())
			protected.GET("/orders/:order_id", orderHandlers.GetOrderHandler())
			protected.GET("/orders/:order_id/events", orderHandlers.OrderEventsHandler())
		}
	}

	return router.Run(":8080")
}
