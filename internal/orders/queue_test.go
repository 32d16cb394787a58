package orders

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/desk-api/internal/broker"
)

func newOrdersDB(t *testing.T) *Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Order{}, &OrderEvent{}))
	return NewDatabase(db)
}

func queueTestOrder(t *testing.T, store *Database) *Order {
	t.Helper()
	order, err := store.Create(CreateRequest{
		AccountID: 1,
		Symbol:    "CL",
		Side:      "BUY",
		Quantity:  2,
	})
	require.NoError(t, err)
	return order
}

func TestCreateQueuesOrderWithEvent(t *testing.T) {
	store := newOrdersDB(t)

	order := queueTestOrder(t, store)
	assert.Equal(t, StatusQueued, order.Status)
	assert.Equal(t, "FUT", order.SecType)
	assert.Equal(t, "NYMEX", order.Exchange)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "MKT", order.OrderType)
	assert.Equal(t, "DAY", order.TIF)
	assert.Equal(t, "api", order.Source)
	assert.NotEmpty(t, order.OrderRef)

	events, err := store.ListEvents(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderCreated, events[0].EventType)
	assert.Equal(t, StatusQueued, events[0].Status)
}

func TestCreateValidation(t *testing.T) {
	store := newOrdersDB(t)

	_, err := store.Create(CreateRequest{AccountID: 1, Symbol: "CL", Side: "HOLD", Quantity: 1})
	assert.Error(t, err)

	_, err = store.Create(CreateRequest{AccountID: 1, Symbol: "CL", Side: "BUY", Quantity: 0})
	assert.Error(t, err)

	_, err = store.Create(CreateRequest{AccountID: 1, Side: "BUY", Quantity: 1})
	assert.Error(t, err)

	_, err = store.Create(CreateRequest{Symbol: "CL", Side: "BUY", Quantity: 1})
	assert.Error(t, err)
}

func TestClaimForSubmissionWinsOnce(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)

	claimed, err := store.ClaimForSubmission(order.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, StatusSubmitting, claimed.Status)

	// Second claim loses: the conditional update matches zero rows.
	lost, err := store.ClaimForSubmission(order.ID)
	require.NoError(t, err)
	assert.Nil(t, lost)
}

func TestClaimForSubmissionSingleWinnerUnderContention(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)

	const claimers = 8
	var (
		wg      sync.WaitGroup
		winners int64
	)
	errs := make(chan error, claimers)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := store.ClaimForSubmission(order.ID)
			if err != nil {
				errs <- err
				return
			}
			if claimed != nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), winners)
}

func TestCancelOnlyWhileQueued(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)

	cancelled, err := store.Cancel(order.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := store.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Already cancelled: a second cancel is a no-op.
	cancelled, err = store.Cancel(order.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// A claimed order cannot be cancelled from the API either.
	claimed := queueTestOrder(t, store)
	_, err = store.ClaimForSubmission(claimed.ID)
	require.NoError(t, err)
	cancelled, err = store.Cancel(claimed.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestListQueuedIDsOldestFirst(t *testing.T) {
	store := newOrdersDB(t)
	first := queueTestOrder(t, store)
	second := queueTestOrder(t, store)

	_, err := store.ClaimForSubmission(first.ID)
	require.NoError(t, err)

	ids, err := store.ListQueuedIDs(10)
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID}, ids)
}

func TestApplyProgressDetectsChange(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)
	order.Status = StatusSubmitted

	changed := store.ApplyProgress(order, &broker.OrderSnapshot{
		Status: "Submitted", Filled: 1, AvgFillPrice: 78.4, BrokerOrderID: 1001,
	})
	assert.True(t, changed)
	assert.Equal(t, StatusPartiallyFilled, order.Status)
	assert.Equal(t, 1.0, order.FilledQuantity)
	require.NotNil(t, order.AvgFillPrice)
	assert.Equal(t, 78.4, *order.AvgFillPrice)

	// Same snapshot again: nothing changed.
	changed = store.ApplyProgress(order, &broker.OrderSnapshot{
		Status: "Submitted", Filled: 1, AvgFillPrice: 78.4, BrokerOrderID: 1001,
	})
	assert.False(t, changed)
}

func TestApplyProgressClampsAndCompletes(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)
	order.Status = StatusSubmitted

	// A negative fill clamps to zero, which leaves the order exactly where
	// it already was: no change, no event.
	changed := store.ApplyProgress(order, &broker.OrderSnapshot{Status: "Submitted", Filled: -3})
	assert.False(t, changed)
	assert.Equal(t, 0.0, order.FilledQuantity)
	assert.Nil(t, order.CompletedAt)

	changed = store.ApplyProgress(order, &broker.OrderSnapshot{Status: "Filled", Filled: 2, AvgFillPrice: 78.4})
	assert.True(t, changed)
	require.NotNil(t, order.CompletedAt)
	completedAt := *order.CompletedAt

	// A late duplicate snapshot never moves completed_at.
	time.Sleep(5 * time.Millisecond)
	store.ApplyProgress(order, &broker.OrderSnapshot{Status: "Filled", Filled: 2, AvgFillPrice: 78.4})
	assert.Equal(t, completedAt, *order.CompletedAt)
}

func TestFailTerminal(t *testing.T) {
	store := newOrdersDB(t)
	order := queueTestOrder(t, store)

	require.NoError(t, store.FailTerminal(order, EventOrderError, "account 7 not found"))
	got, err := store.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "account 7 not found", got.LastError)
	require.NotNil(t, got.CompletedAt)

	events, err := store.ListEvents(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventOrderError, events[1].EventType)
}
