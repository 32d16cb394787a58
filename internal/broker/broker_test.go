package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsMock(t *testing.T) {
	gw, err := New("mock", ConnectConfig{})
	require.NoError(t, err)
	require.NotNil(t, gw)

	_, err = New("no-such-provider", ConnectConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "no-such-provider"`)
	assert.Contains(t, err.Error(), "mock")
}

func TestConnectWithRetries(t *testing.T) {
	gw := NewMockGateway()
	gw.ConnectErr = errors.New("connection refused")

	cfg := ConnectRetryConfig{MaxAttempts: 3, RetryDelay: time.Millisecond}
	attempts := 0
	err := ConnectWithRetries(context.Background(), gw, cfg, zerolog.Nop(), func(attempt int, err error) {
		attempts = attempt
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.Equal(t, 3, attempts)

	gw.ConnectErr = nil
	require.NoError(t, ConnectWithRetries(context.Background(), gw, cfg, zerolog.Nop(), nil))
	assert.True(t, gw.IsConnected())
}

func TestConnectWithRetriesHonoursContext(t *testing.T) {
	gw := NewMockGateway()
	gw.ConnectErr = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ConnectWithRetries(ctx, gw, ConnectRetryConfig{MaxAttempts: 5, RetryDelay: time.Minute}, zerolog.Nop(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerGatewayOpensAfterConsecutiveFailures(t *testing.T) {
	gw := NewMockGateway()
	gw.QualifyErr = errors.New("gateway timeout")
	guarded := NewBreakerGateway(gw)

	for i := 0; i < 5; i++ {
		_, err := guarded.QualifyContract(context.Background(), ContractSpec{ConID: 1})
		require.Error(t, err)
	}

	// The breaker is now open: the underlying gateway is no longer called.
	gw.QualifyErr = nil
	gw.QualifyResults[1] = &Contract{ConID: 1, Symbol: "CL"}
	_, err := guarded.QualifyContract(context.Background(), ContractSpec{ConID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestBreakerGatewayPassesThroughSubmission(t *testing.T) {
	gw := NewMockGateway()
	guarded := NewBreakerGateway(gw)

	// Submission and polling skip the breaker entirely.
	id, err := guarded.PlaceMarketOrder(context.Background(), Contract{ConID: 1}, MarketOrder{
		Account: "DU123456", Side: "BUY", Quantity: 1, TIF: "DAY",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(1000))
}

func TestMockOrderScriptRepeatsLastSnapshot(t *testing.T) {
	gw := NewMockGateway()
	id := gw.ScriptOrder(
		OrderSnapshot{Status: "Submitted", Filled: 0},
		OrderSnapshot{Status: "Filled", Filled: 1, Done: true},
	)

	placed, err := gw.PlaceMarketOrder(context.Background(), Contract{ConID: 1}, MarketOrder{})
	require.NoError(t, err)
	assert.Equal(t, id, placed)

	first, err := gw.OrderSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Submitted", first.Status)

	second, err := gw.OrderSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Filled", second.Status)

	// Script exhausted: the last entry repeats.
	third, err := gw.OrderSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Filled", third.Status)
	assert.True(t, third.Done)
	assert.Equal(t, id, third.BrokerOrderID)
}
