package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ksred/desk-api/internal/broker"
)

// SyncSummary reports what a catalog sync touched.
type SyncSummary struct {
	SyncedCount  int `json:"synced_count"`
	UniqueConIDs int `json:"unique_con_ids"`
	SpecsCount   int `json:"specs_count"`
}

// SyncCatalog refreshes ContractRef rows from the gateway for a set of
// instrument specs. Every returned contract is upserted by con_id; previously
// active rows for the spec's (symbol, sec_type) that the gateway no longer
// returns are flipped inactive. Each spec commits in its own transaction so a
// failure on one spec does not roll back earlier specs.
func SyncCatalog(ctx context.Context, db *gorm.DB, gw broker.Gateway, specs []InstrumentSpec) (*SyncSummary, error) {
	logger := log.With().Str("component", "contract_sync").Logger()

	allConIDs := make(map[int64]bool)
	syncedCount := 0

	for _, spec := range specs {
		details, err := gw.ContractDetails(ctx, broker.ContractSpec{
			Symbol:   spec.Symbol,
			SecType:  spec.SecType,
			Exchange: spec.Exchange,
			Currency: spec.Currency,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching contract details for %s %s on %s: %w",
				spec.Symbol, spec.SecType, spec.Exchange, err)
		}
		if len(details) == 0 {
			logger.Warn().
				Str("symbol", spec.Symbol).
				Str("sec_type", spec.SecType).
				Msg("gateway returned no contracts for spec")
			continue
		}

		seen, count, err := upsertSpecContracts(db, spec, details)
		if err != nil {
			return nil, err
		}
		syncedCount += count
		for conID := range seen {
			allConIDs[conID] = true
		}

		logger.Info().
			Str("symbol", spec.Symbol).
			Str("sec_type", spec.SecType).
			Int("contracts", count).
			Msg("synced contract spec")
	}

	return &SyncSummary{
		SyncedCount:  syncedCount,
		UniqueConIDs: len(allConIDs),
		SpecsCount:   len(specs),
	}, nil
}

// upsertSpecContracts writes one spec's contracts and deactivates stale rows
// inside a single transaction.
func upsertSpecContracts(db *gorm.DB, spec InstrumentSpec, details []broker.Contract) (map[int64]bool, int, error) {
	tx := db.Begin()
	if err := tx.Error; err != nil {
		return nil, 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	now := time.Now().UTC()
	seen := make(map[int64]bool)
	count := 0

	for _, contract := range details {
		if contract.ConID == 0 || seen[contract.ConID] {
			continue
		}

		row := refFromGatewayContract(contract, spec, now)
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "con_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"symbol", "sec_type", "exchange", "currency", "local_symbol",
				"trading_class", "contract_month", "contract_expiry", "multiplier",
				"strike", "right", "primary_exchange", "is_active", "fetched_at", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			tx.Rollback()
			return nil, 0, fmt.Errorf("upserting contract con_id=%d: %w", contract.ConID, err)
		}
		seen[contract.ConID] = true
		count++
	}

	if len(seen) > 0 {
		conIDs := make([]int64, 0, len(seen))
		for conID := range seen {
			conIDs = append(conIDs, conID)
		}
		err := tx.Model(&ContractRef{}).
			Where("symbol = ? AND sec_type = ? AND is_active = ? AND con_id NOT IN ?",
				specSymbol(spec), specSecType(spec), true, conIDs).
			Updates(map[string]interface{}{"is_active": false, "updated_at": now}).Error
		if err != nil {
			tx.Rollback()
			return nil, 0, fmt.Errorf("deactivating stale contracts for %s %s: %w",
				spec.Symbol, spec.SecType, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, 0, err
	}
	return seen, count, nil
}

func refFromGatewayContract(contract broker.Contract, spec InstrumentSpec, now time.Time) ContractRef {
	rawExpiry := strings.TrimSpace(contract.ContractExpiry)

	var strike *float64
	if contract.Strike != 0 {
		value := contract.Strike
		strike = &value
	}
	right := contract.Right
	if right == "?" {
		right = ""
	}

	return ContractRef{
		ConID:           contract.ConID,
		Symbol:          firstNonEmpty(contract.Symbol, spec.Symbol, "UNKNOWN"),
		SecType:         firstNonEmpty(contract.SecType, spec.SecType, "FUT"),
		Exchange:        firstNonEmpty(contract.Exchange, spec.Exchange, "SMART"),
		Currency:        firstNonEmpty(contract.Currency, spec.Currency, "USD"),
		LocalSymbol:     contract.LocalSymbol,
		TradingClass:    contract.TradingClass,
		ContractMonth:   MonthFromExpiry(rawExpiry),
		ContractExpiry:  rawExpiry,
		Multiplier:      contract.Multiplier,
		Strike:          strike,
		Right:           right,
		PrimaryExchange: contract.PrimaryExchange,
		IsActive:        true,
		FetchedAt:       now,
	}
}

func specSymbol(spec InstrumentSpec) string  { return firstNonEmpty(spec.Symbol, "UNKNOWN") }
func specSecType(spec InstrumentSpec) string { return firstNonEmpty(spec.SecType, "FUT") }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
