package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/metrics"
	"github.com/ksred/desk-api/internal/workers"
)

// WorkerConfig tunes the order worker loop.
type WorkerConfig struct {
	// PollInterval is the sleep between passes when no order is claimed.
	PollInterval time.Duration
	// SubmitTimeout bounds how long a submitted order is polled before it is
	// force-failed.
	SubmitTimeout time.Duration
	// StatusPollInterval is the delay between broker snapshot polls.
	StatusPollInterval time.Duration
	// MinDaysToExpiry maps symbols to the minimum remaining days a resolved
	// contract must have before it is accepted for submission.
	MinDaysToExpiry map[string]int
}

func (c *WorkerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 60 * time.Second
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = time.Second
	}
}

// Worker drains the order queue: claim, qualify, safety-check, submit, then
// poll the broker until the order reaches a terminal status or times out.
type Worker struct {
	store      *Database
	accounts   *accounts.Database
	resolver   *contracts.Resolver
	gateway    broker.Gateway
	jobQueue   *jobs.Queue
	heartbeats *workers.Heartbeats
	logger     zerolog.Logger
	cfg        WorkerConfig
	now        func() time.Time
}

func NewWorker(store *Database, accountDB *accounts.Database, resolver *contracts.Resolver, gw broker.Gateway, jobQueue *jobs.Queue, heartbeats *workers.Heartbeats, logger zerolog.Logger, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:      store,
		accounts:   accountDB,
		resolver:   resolver,
		gateway:    gw,
		jobQueue:   jobQueue,
		heartbeats: heartbeats,
		logger:     logger.With().Str("component", "order_worker").Logger(),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run processes queued orders until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.heartbeat(workers.StatusStarting, "order worker starting")
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("Order worker started")

	processed := 0
	for {
		select {
		case <-ctx.Done():
			w.heartbeat(workers.StatusStopped, fmt.Sprintf("stopped, processed=%d", processed))
			w.logger.Info().Int("processed", processed).Msg("Order worker stopped")
			return ctx.Err()
		default:
		}

		n, err := w.RunOnce(ctx)
		if err != nil {
			w.heartbeat(workers.StatusError, err.Error())
			w.logger.Error().Err(err).Msg("Order worker pass failed")
		} else {
			processed += n
			w.heartbeat(workers.StatusRunning, fmt.Sprintf("processed=%d", processed))
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce scans queued orders oldest first and processes every one it wins
// the claim on. When at least one order was worked, a positions.sync job is
// queued (if idle) so the book reflects the fills.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.store.ListQueuedIDs(20)
	if err != nil {
		return 0, fmt.Errorf("failed to list queued orders: %w", err)
	}
	metrics.QueueDepth.WithLabelValues("orders").Set(float64(len(ids)))

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		order, err := w.store.ClaimForSubmission(id)
		if err != nil {
			w.logger.Error().Err(err).Uint("order_id", id).Msg("Failed to claim order")
			continue
		}
		if order == nil {
			// Lost the claim; another worker has it.
			continue
		}
		w.processOrder(ctx, order)
		processed++
	}

	if processed > 0 {
		if _, err := w.jobQueue.EnqueueIfIdle(jobs.TypePositionsSync, jobs.PositionsSyncPayload{}, "order_worker", ""); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to queue positions sync after order pass")
		}
	}
	return processed, nil
}

func (w *Worker) processOrder(ctx context.Context, order *Order) {
	logger := w.logger.With().Uint("order_id", order.ID).Str("order_ref", order.OrderRef).Logger()
	logger.Info().Str("symbol", order.Symbol).Str("side", order.Side).Int("quantity", order.Quantity).Msg("Processing order")

	account, err := w.accounts.GetByID(order.AccountID)
	if err != nil || account == nil {
		w.fail(order, EventOrderError, fmt.Sprintf("account %d not found", order.AccountID), logger)
		return
	}

	contract, err := w.qualifyOrder(ctx, order)
	if err != nil {
		w.fail(order, EventOrderError, fmt.Sprintf("contract qualification failed: %v", err), logger)
		return
	}
	if err := w.store.SaveWithEvent(order, EventContractQualified,
		fmt.Sprintf("Qualified %s con_id=%d expiry=%s", order.LocalSymbol, order.ConID, order.ContractExpiry)); err != nil {
		logger.Error().Err(err).Msg("Failed to record qualification")
		return
	}

	if err := w.checkManagedAccount(ctx, account.Account); err != nil {
		w.fail(order, EventOrderError, err.Error(), logger)
		return
	}

	brokerOrderID, err := w.gateway.PlaceMarketOrder(ctx, *contract, broker.MarketOrder{
		Account:  account.Account,
		Side:     order.Side,
		Quantity: order.Quantity,
		TIF:      order.TIF,
	})
	if err != nil {
		w.fail(order, EventOrderError, fmt.Sprintf("submission failed: %v", err), logger)
		return
	}

	now := w.now()
	order.Status = StatusSubmitted
	order.BrokerOrderID = brokerOrderID
	order.SubmittedAt = &now
	if err := w.store.SaveWithEvent(order, EventOrderSubmitted,
		fmt.Sprintf("Submitted to broker, broker_order_id=%d", brokerOrderID)); err != nil {
		logger.Error().Err(err).Msg("Failed to record submission")
		return
	}
	logger.Info().Int64("broker_order_id", brokerOrderID).Msg("Order submitted")

	w.pollUntilDone(ctx, order, logger)
}

// qualifyOrder fills the order's contract identity. An order arriving with a
// con_id is requalified as-is; otherwise the catalog resolver picks the front
// month. A minimum-days-to-expiry window applies to symbols with a configured
// policy whichever path chose the contract.
func (w *Worker) qualifyOrder(ctx context.Context, order *Order) (*broker.Contract, error) {
	if order.ConID != 0 {
		c, err := w.gateway.QualifyContract(ctx, broker.ContractSpec{
			ConID:    order.ConID,
			Exchange: order.Exchange,
			Currency: order.Currency,
		})
		if err != nil {
			return nil, err
		}
		order.Symbol = c.Symbol
		order.SecType = c.SecType
		order.LocalSymbol = c.LocalSymbol
		order.TradingClass = c.TradingClass
		order.ContractExpiry = c.ContractExpiry
		order.ContractMonth = contracts.MonthFromExpiry(c.ContractExpiry)

		if minDays, ok := w.cfg.MinDaysToExpiry[order.Symbol]; ok && c.ContractExpiry != "" {
			days, parsed := contracts.DaysToExpiry(c.ContractExpiry, w.now())
			if !parsed {
				return nil, fmt.Errorf("unparseable expiry %q for con_id %d", c.ContractExpiry, c.ConID)
			}
			if days < minDays {
				return nil, fmt.Errorf("contract %s expires in %d days, below the %d-day minimum for %s",
					c.LocalSymbol, days, minDays, order.Symbol)
			}
		}
		return c, nil
	}

	minDays := contracts.DefaultMinDaysToExpiry
	if configured, ok := w.cfg.MinDaysToExpiry[order.Symbol]; ok {
		minDays = configured
	}
	resolved, err := w.resolver.Resolve(contracts.ResolveRequest{
		Symbol:          order.Symbol,
		SecType:         order.SecType,
		MinDaysToExpiry: minDays,
	})
	if err != nil {
		return nil, err
	}
	ref := resolved.ContractRef
	order.ConID = ref.ConID
	order.LocalSymbol = ref.LocalSymbol
	order.TradingClass = ref.TradingClass
	order.ContractExpiry = ref.ContractExpiry
	order.ContractMonth = ref.ContractMonth

	qualified, err := w.gateway.QualifyContract(ctx, broker.ContractSpec{
		ConID:    ref.ConID,
		Exchange: order.Exchange,
		Currency: order.Currency,
	})
	if err != nil {
		return nil, err
	}
	return qualified, nil
}

// checkManagedAccount refuses to submit for an account the live session does
// not manage. The account identifier is masked in errors and logs.
func (w *Worker) checkManagedAccount(ctx context.Context, account string) error {
	managed, err := w.gateway.ManagedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list managed accounts: %v", err)
	}
	for _, m := range managed {
		if strings.TrimSpace(m) == account {
			return nil
		}
	}
	return fmt.Errorf("account %s is not managed by the current broker session", accounts.Mask(account))
}

// pollUntilDone tracks the submitted order until the broker reports it done
// or the timeout expires. On timeout the order is force-failed but keeps any
// partial fills already recorded.
func (w *Worker) pollUntilDone(ctx context.Context, order *Order, logger zerolog.Logger) {
	deadline := w.now().Add(w.cfg.SubmitTimeout)
	var lastAdvancedError string

	for {
		if ctx.Err() != nil {
			return
		}
		snapshot, err := w.gateway.OrderSnapshot(ctx, order.BrokerOrderID)
		if err != nil {
			logger.Warn().Err(err).Msg("Order snapshot failed, retrying")
		} else {
			if snapshot.AdvancedError != "" && snapshot.AdvancedError != lastAdvancedError {
				lastAdvancedError = snapshot.AdvancedError
				if err := w.store.SaveWithEvent(order, EventBrokerAdvancedError, snapshot.AdvancedError); err != nil {
					logger.Error().Err(err).Msg("Failed to record broker advanced error")
				}
			}
			if w.store.ApplyProgress(order, snapshot) {
				eventType := EventOrderProgress
				if order.Terminal() {
					eventType = EventOrderFinal
				}
				message := fmt.Sprintf("status=%s filled=%.0f remaining=%.0f", order.Status, snapshot.Filled, snapshot.Remaining)
				if err := w.store.SaveWithEvent(order, eventType, message); err != nil {
					logger.Error().Err(err).Msg("Failed to record order progress")
					return
				}
			}
			if snapshot.Done || order.Terminal() {
				logger.Info().Str("status", order.Status).Float64("filled", order.FilledQuantity).Msg("Order reached terminal status")
				metrics.OrdersProcessed.WithLabelValues(order.Status).Inc()
				return
			}
		}

		if w.now().After(deadline) {
			order.Status = StatusFailed
			order.LastError = fmt.Sprintf("timed out after %s waiting for terminal status", w.cfg.SubmitTimeout)
			if order.CompletedAt == nil {
				now := w.now()
				order.CompletedAt = &now
			}
			if err := w.store.SaveWithEvent(order, EventOrderTimeout, order.LastError); err != nil {
				logger.Error().Err(err).Msg("Failed to record order timeout")
			}
			logger.Warn().Float64("filled", order.FilledQuantity).Msg("Order timed out")
			metrics.OrdersProcessed.WithLabelValues("timeout").Inc()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.StatusPollInterval):
		}
	}
}

func (w *Worker) fail(order *Order, eventType, message string, logger zerolog.Logger) {
	logger.Error().Str("reason", message).Msg("Order failed")
	if err := w.store.FailTerminal(order, eventType, message); err != nil {
		logger.Error().Err(err).Msg("Failed to persist order failure")
	}
	metrics.OrdersProcessed.WithLabelValues("failed").Inc()
}

func (w *Worker) heartbeat(status, details string) {
	if w.heartbeats == nil {
		return
	}
	if err := w.heartbeats.Upsert(workers.TypeOrders, status, details); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to write heartbeat")
	}
}
