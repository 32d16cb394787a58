package watchlists

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/desk-api/internal/broker"
	"github.com/ksred/desk-api/internal/contracts"
)

func newServiceFixture(t *testing.T) (*Service, *broker.MockGateway) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&WatchList{}, &WatchListInstrument{}))

	gw := broker.NewMockGateway()
	gw.Details[broker.DetailsKey("CL", "FUT")] = []broker.Contract{
		{ConID: 101, Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD",
			LocalSymbol: "CLH6", TradingClass: "CL", ContractExpiry: "20260320", Multiplier: "1000"},
		{ConID: 102, Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD",
			LocalSymbol: "CLJ6", TradingClass: "CL", ContractExpiry: "20260421", Multiplier: "1000"},
	}
	return NewService(db, gw, zerolog.Nop()), gw
}

func TestCreateGetDelete(t *testing.T) {
	svc, _ := newServiceFixture(t)

	list, err := svc.Create("  energy desk  ", " front of book ")
	require.NoError(t, err)
	assert.Equal(t, "energy desk", list.Name)
	assert.Equal(t, "front of book", list.Description)
	assert.Equal(t, 0, list.Position)

	// Names are unique.
	_, err = svc.Create("energy desk", "")
	assert.Error(t, err)

	got, err := svc.Get(list.ID)
	require.NoError(t, err)
	assert.Equal(t, list.ID, got.ID)

	require.NoError(t, svc.Delete(list.ID))
	_, err = svc.Get(list.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(999), ErrNotFound)
}

func TestCreateAppendsToOrdering(t *testing.T) {
	svc, _ := newServiceFixture(t)

	first, err := svc.Create("energy", "")
	require.NoError(t, err)
	second, err := svc.Create("metals", "")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)

	lists, err := svc.List()
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "energy", lists[0].Name)
	assert.Equal(t, "metals", lists[1].Name)
}

func TestUpdateList(t *testing.T) {
	svc, _ := newServiceFixture(t)
	list, err := svc.Create("energy", "crude and products")
	require.NoError(t, err)

	name := "  energy desk  "
	updated, err := svc.Update(list.ID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "energy desk", updated.Name)
	assert.Equal(t, "crude and products", updated.Description)

	description := "crude only"
	updated, err = svc.Update(list.ID, nil, &description)
	require.NoError(t, err)
	assert.Equal(t, "energy desk", updated.Name)
	assert.Equal(t, "crude only", updated.Description)

	empty := " "
	_, err = svc.Update(list.ID, &empty, nil)
	assert.Error(t, err)

	_, err = svc.Update(999, &name, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReorderLists(t *testing.T) {
	svc, _ := newServiceFixture(t)
	first, err := svc.Create("energy", "")
	require.NoError(t, err)
	second, err := svc.Create("metals", "")
	require.NoError(t, err)
	third, err := svc.Create("ags", "")
	require.NoError(t, err)

	require.NoError(t, svc.Reorder([]uint{third.ID, first.ID, second.ID}))

	lists, err := svc.List()
	require.NoError(t, err)
	require.Len(t, lists, 3)
	assert.Equal(t, "ags", lists[0].Name)
	assert.Equal(t, "energy", lists[1].Name)
	assert.Equal(t, "metals", lists[2].Name)
	assert.Equal(t, []int{0, 1, 2}, []int{lists[0].Position, lists[1].Position, lists[2].Position})
}

func TestAddInstrumentResolvesFrontMonth(t *testing.T) {
	svc, _ := newServiceFixture(t)
	list, err := svc.Create("energy", "")
	require.NoError(t, err)

	instrument, err := svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), instrument.ConID)
	assert.Equal(t, "CLH6", instrument.LocalSymbol)
	assert.NotEmpty(t, instrument.DisplayName)

	// The same con_id cannot be added twice.
	_, err = svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	assert.Error(t, err)

	_, err = svc.AddInstrument(context.Background(), 999, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddInstrumentSpecificMonth(t *testing.T) {
	svc, _ := newServiceFixture(t)
	list, err := svc.Create("energy", "")
	require.NoError(t, err)

	instrument, err := svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", ContractMonth: "2026-04",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(102), instrument.ConID)
}

func TestRemoveInstrument(t *testing.T) {
	svc, _ := newServiceFixture(t)
	list, err := svc.Create("energy", "")
	require.NoError(t, err)
	instrument, err := svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	require.NoError(t, err)

	removed, err := svc.RemoveInstrument(list.ID, instrument.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.RemoveInstrument(list.ID, instrument.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRefreshQuotes(t *testing.T) {
	svc, gw := newServiceFixture(t)
	list, err := svc.Create("energy", "")
	require.NoError(t, err)
	_, err = svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	require.NoError(t, err)

	gw.Ticker = &broker.TickerSnapshot{Bid: 78.40, Ask: 78.44, Last: 78.38}

	updated, err := svc.RefreshQuotes(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	items, err := svc.Instruments(list.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Bid)
	assert.Equal(t, 78.40, *items[0].Bid)
	// No close in the snapshot: the field stays empty rather than zero.
	assert.Nil(t, items[0].Close)
	require.NotNil(t, items[0].QuoteAt)
}

func TestRefreshQuotesSkipsFailedInstruments(t *testing.T) {
	svc, gw := newServiceFixture(t)
	list, err := svc.Create("energy", "")
	require.NoError(t, err)
	_, err = svc.AddInstrument(context.Background(), list.ID, contracts.SelectionRequest{
		Symbol: "CL", SecType: "FUT", Exchange: "NYMEX",
	})
	require.NoError(t, err)

	gw.TickerErr = errors.New("market data farm down")

	updated, err := svc.RefreshQuotes(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	items, err := svc.Instruments(list.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].QuoteAt)
}
