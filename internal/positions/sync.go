// Package positions holds the broker position snapshot and its sync.
package positions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/broker"
)

// SyncOnce fetches current positions from the gateway and replaces the
// snapshot rows for every account the response covers: accounts are created
// lazily, prior rows for those accounts are deleted, fresh rows inserted, all
// in one transaction. Returns the number of positions fetched.
func SyncOnce(ctx context.Context, db *gorm.DB, gw broker.Gateway) (int, error) {
	logger := log.With().Str("component", "position_sync").Logger()

	items, err := gw.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching positions from gateway: %w", err)
	}

	scope := make(map[string]bool)
	for _, item := range items {
		if item.Account != "" {
			scope[item.Account] = true
		}
	}
	if len(scope) == 0 {
		logger.Info().Msg("gateway returned no positions; nothing to sync")
		return 0, nil
	}

	identifiers := make([]string, 0, len(scope))
	for identifier := range scope {
		identifiers = append(identifiers, identifier)
	}

	now := time.Now().UTC()
	err = db.Transaction(func(tx *gorm.DB) error {
		lookup, err := accounts.GetOrCreate(tx, identifiers)
		if err != nil {
			return fmt.Errorf("resolving accounts: %w", err)
		}

		accountIDs := make([]uint, 0, len(lookup))
		for _, id := range lookup {
			accountIDs = append(accountIDs, id)
		}

		// Replace semantics per fetched account scope: clear the prior
		// snapshot for these accounts, then insert fresh rows.
		if err := tx.Unscoped().Where("account_id IN ?", accountIDs).Delete(&Position{}).Error; err != nil {
			return fmt.Errorf("clearing prior snapshot: %w", err)
		}

		for _, item := range items {
			accountID, ok := lookup[item.Account]
			if !ok {
				continue
			}
			row := rowFromGatewayPosition(item, accountID, now)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("inserting position con_id=%d: %w", item.Contract.ConID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info().
		Int("positions", len(items)).
		Int("accounts", len(scope)).
		Msg("position snapshot replaced")
	return len(items), nil
}

func rowFromGatewayPosition(item broker.PositionItem, accountID uint, now time.Time) Position {
	contract := item.Contract
	var strike *float64
	if contract.Strike != 0 {
		value := contract.Strike
		strike = &value
	}
	return Position{
		AccountID:       accountID,
		ConID:           contract.ConID,
		Symbol:          contract.Symbol,
		SecType:         contract.SecType,
		Exchange:        contract.Exchange,
		PrimaryExchange: contract.PrimaryExchange,
		Currency:        contract.Currency,
		LocalSymbol:     contract.LocalSymbol,
		TradingClass:    contract.TradingClass,
		LastTradeDate:   contract.ContractExpiry,
		Strike:          strike,
		Right:           contract.Right,
		Multiplier:      contract.Multiplier,
		Position:        item.Position,
		AvgCost:         item.AvgCost,
		FetchedAt:       now,
	}
}

// Database gives the API read access to the snapshot.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// List returns the snapshot, optionally scoped to one account.
func (d *Database) List(accountID uint) ([]Position, error) {
	query := d.db.Order("account_id asc, symbol asc")
	if accountID != 0 {
		query = query.Where("account_id = ?", accountID)
	}
	var rows []Position
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
