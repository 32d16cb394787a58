package tradebot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/positions"
)

func newToolsFixture(t *testing.T) (*Tools, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accounts.Account{}, &contracts.ContractRef{}, &positions.Position{},
		&orders.Order{}, &orders.OrderEvent{}, &jobs.Job{},
	))

	require.NoError(t, db.Create(&accounts.Account{Account: "DU123456"}).Error)
	for conID, expiry := range map[int64]string{
		101: time.Now().UTC().AddDate(0, 2, 0).Format("20060102"),
		102: time.Now().UTC().AddDate(0, 3, 0).Format("20060102"),
	} {
		require.NoError(t, db.Create(&contracts.ContractRef{
			ConID: conID, Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD",
			LocalSymbol: fmt.Sprintf("CL%d", conID), TradingClass: "CL",
			ContractMonth:  contracts.MonthFromExpiry(expiry),
			ContractExpiry: expiry, Multiplier: "1000", IsActive: true,
			FetchedAt: time.Now().UTC(),
		}).Error)
	}

	contractDB := contracts.NewDatabase(db)
	tools := NewTools(
		contractDB,
		contracts.NewResolver(contractDB),
		accounts.NewDatabase(db),
		positions.NewDatabase(db),
		orders.NewDatabase(db),
		jobs.NewQueue(db),
		zerolog.Nop(),
	)
	return tools, db
}

func TestPreviewOrderFrontMonth(t *testing.T) {
	tools, _ := newToolsFixture(t)

	result, err := tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "cl", SecType: "fut", Side: "buy", Quantity: 2, Account: "DU123456",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(101), result.ConID)
	assert.Equal(t, "BUY", result.Side)
	assert.Equal(t, "DU123456", result.Account)
	assert.True(t, result.RequestedAvailable)
	assert.Empty(t, result.MonthFallbackNote)
	assert.NotEmpty(t, result.DisplayName)
	require.NotNil(t, result.DaysToExpiry)
}

func TestPreviewOrderMonthFallbackNote(t *testing.T) {
	tools, _ := newToolsFixture(t)

	// Ask for a month a year out that the catalog does not carry.
	missing := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01")
	result, err := tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "CL", SecType: "FUT", Side: "SELL", Quantity: 1,
		Account: "DU123456", ContractMonth: missing,
	})
	require.NoError(t, err)

	assert.False(t, result.RequestedAvailable)
	assert.Contains(t, result.MonthFallbackNote, "is not available; using")
	assert.Equal(t, int64(101), result.ConID)
}

func TestPreviewOrderValidation(t *testing.T) {
	tools, _ := newToolsFixture(t)

	_, err := tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "CL", SecType: "FUT", Side: "HOLD", Quantity: 1, Account: "DU123456",
	})
	assert.Error(t, err)

	_, err = tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "CL", SecType: "FUT", Side: "BUY", Quantity: 0, Account: "DU123456",
	})
	assert.Error(t, err)

	_, err = tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "CL", SecType: "FUT", Side: "BUY", Quantity: 1, Account: "DU000000",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = tools.PreviewOrder(context.Background(), PreviewOrderRequest{
		Symbol: "CL", SecType: "FUT", Side: "BUY", Quantity: 1,
		Account: "DU123456", ContractMonth: "not-a-month",
	})
	assert.Error(t, err)
}

func TestQueueOrderPinsPreviewedContract(t *testing.T) {
	tools, _ := newToolsFixture(t)

	order, err := tools.QueueOrder(context.Background(), QueueOrderRequest{
		Symbol: "cl", SecType: "fut", Side: "buy", Quantity: 2,
		Account: "DU123456", ConID: 101, RequestText: "buy 2 lots of oil",
	})
	require.NoError(t, err)

	assert.Equal(t, "CL", order.Symbol)
	assert.Equal(t, int64(101), order.ConID)
	assert.Equal(t, "tradebot", order.Source)
	assert.Equal(t, "buy 2 lots of oil", order.RequestText)
	assert.Equal(t, orders.StatusQueued, order.Status)

	listed, err := tools.ListOrders(10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestListContracts(t *testing.T) {
	tools, _ := newToolsFixture(t)

	refs, err := tools.ListContracts("cl", 10)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}
