package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ConnectRetryConfig bounds the fixed-delay connect loop workers run at boot.
type ConnectRetryConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultConnectRetry mirrors the desk's worker defaults: six attempts, 5s apart.
func DefaultConnectRetry() ConnectRetryConfig {
	return ConnectRetryConfig{MaxAttempts: 6, RetryDelay: 5 * time.Second}
}

// ConnectWithRetries dials the gateway with bounded fixed-delay retries.
// onAttemptFailure is invoked after each failed attempt so callers can record
// a heartbeat; it may be nil.
func ConnectWithRetries(
	ctx context.Context,
	gw Gateway,
	cfg ConnectRetryConfig,
	logger zerolog.Logger,
	onAttemptFailure func(attempt int, err error),
) error {
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("connect max attempts must be >= 1, got %d", cfg.MaxAttempts)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = gw.Connect(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Msg("gateway connect attempt failed")
		if onAttemptFailure != nil {
			onAttemptFailure(attempt, lastErr)
		}

		if attempt < cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}

	return fmt.Errorf("unable to connect to gateway after %d attempt(s): %w", cfg.MaxAttempts, lastErr)
}

// BreakerGateway wraps a Gateway with a circuit breaker around the request
// methods. Connection management and order submission are passed through:
// tripping the breaker on a half-submitted order would hide its outcome.
type BreakerGateway struct {
	Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway builds a breaker-protected gateway.
func NewBreakerGateway(gw Gateway) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    "broker-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerGateway{
		Gateway: gw,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerGateway) ContractDetails(ctx context.Context, spec ContractSpec) ([]Contract, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Gateway.ContractDetails(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Contract), nil
}

func (b *BreakerGateway) QualifyContract(ctx context.Context, spec ContractSpec) (*Contract, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Gateway.QualifyContract(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Contract), nil
}

func (b *BreakerGateway) OptionChains(ctx context.Context, underlying Contract) ([]OptionChain, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Gateway.OptionChains(ctx, underlying)
	})
	if err != nil {
		return nil, err
	}
	return result.([]OptionChain), nil
}

func (b *BreakerGateway) WhatIfOrder(ctx context.Context, contract Contract, order MarketOrder) (*WhatIfResult, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Gateway.WhatIfOrder(ctx, contract, order)
	})
	if err != nil {
		return nil, err
	}
	return result.(*WhatIfResult), nil
}

func (b *BreakerGateway) Snapshot(ctx context.Context, contract Contract) (*TickerSnapshot, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.Gateway.Snapshot(ctx, contract)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TickerSnapshot), nil
}
