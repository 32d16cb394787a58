package contracts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/desk-api/internal/broker"
)

func futContract(conID int64, expiry string) broker.Contract {
	return broker.Contract{
		ConID:          conID,
		Symbol:         "CL",
		SecType:        "FUT",
		Exchange:       "NYMEX",
		Currency:       "USD",
		LocalSymbol:    "CL" + expiry[:6],
		TradingClass:   "CL",
		ContractExpiry: expiry,
		Multiplier:     "1000",
	}
}

func TestSyncCatalogUpsertsAndDeactivates(t *testing.T) {
	db := newCatalogDB(t)
	gw := broker.NewMockGateway()
	spec := InstrumentSpec{Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD"}

	gw.Details[broker.DetailsKey("CL", "FUT")] = []broker.Contract{
		futContract(101, "20260320"),
		futContract(102, "20260421"),
	}

	summary, err := SyncCatalog(context.Background(), db, gw, []InstrumentSpec{spec})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SyncedCount)
	assert.Equal(t, 2, summary.UniqueConIDs)
	assert.Equal(t, 1, summary.SpecsCount)

	// Next listing drops 101 and introduces 103: 101 must flip inactive,
	// not disappear, so order history keeps its reference.
	gw.Details[broker.DetailsKey("CL", "FUT")] = []broker.Contract{
		futContract(102, "20260421"),
		futContract(103, "20260519"),
	}

	summary, err = SyncCatalog(context.Background(), db, gw, []InstrumentSpec{spec})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SyncedCount)

	store := NewDatabase(db)
	stale, err := store.ByConID(101)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.False(t, stale.IsActive)

	active, err := store.ActiveContracts("CL", "FUT", nil, "")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, int64(102), active[0].ConID)
	assert.Equal(t, int64(103), active[1].ConID)
}

func TestSyncCatalogDerivesMonthAndDedupes(t *testing.T) {
	db := newCatalogDB(t)
	gw := broker.NewMockGateway()
	spec := InstrumentSpec{Symbol: "CL", SecType: "FUT", Exchange: "NYMEX", Currency: "USD"}

	// Duplicate con_id in the gateway response counts once.
	gw.Details[broker.DetailsKey("CL", "FUT")] = []broker.Contract{
		futContract(101, "20260320"),
		futContract(101, "20260320"),
	}

	summary, err := SyncCatalog(context.Background(), db, gw, []InstrumentSpec{spec})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SyncedCount)

	ref, err := NewDatabase(db).ByConID(101)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "2026-03", ref.ContractMonth)
	assert.True(t, ref.IsActive)
	assert.WithinDuration(t, time.Now().UTC(), ref.FetchedAt, time.Minute)
}

func TestSyncCatalogSkipsEmptySpecs(t *testing.T) {
	db := newCatalogDB(t)
	gw := broker.NewMockGateway()

	// Nothing scripted for NG: the spec is skipped, not an error.
	summary, err := SyncCatalog(context.Background(), db, gw, []InstrumentSpec{
		{Symbol: "NG", SecType: "FUT", Exchange: "NYMEX", Currency: "USD"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SyncedCount)
	assert.Equal(t, 1, summary.SpecsCount)
}
