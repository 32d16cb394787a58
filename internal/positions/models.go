package positions

import (
	"time"

	"gorm.io/gorm"
)

// Position is the current holding for one (account, contract) pair. The table
// is a snapshot, not an append log: each sync replaces the rows for every
// account in its scope.
type Position struct {
	gorm.Model      `json:"-"`
	AccountID       uint     `gorm:"uniqueIndex:uq_account_id_con_id,priority:1" json:"account_id"`
	ConID           int64    `gorm:"uniqueIndex:uq_account_id_con_id,priority:2;column:con_id" json:"con_id"`
	Symbol          string   `json:"symbol"`
	SecType         string   `json:"sec_type"`
	Exchange        string   `json:"exchange,omitempty"`
	PrimaryExchange string   `json:"primary_exchange,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	LocalSymbol     string   `json:"local_symbol,omitempty"`
	TradingClass    string   `json:"trading_class,omitempty"`
	LastTradeDate   string   `json:"last_trade_date,omitempty"`
	Strike          *float64 `json:"strike,omitempty"`
	Right           string   `json:"right,omitempty"`
	Multiplier      string   `json:"multiplier,omitempty"`
	Position        float64  `json:"position"`
	AvgCost         float64  `json:"avg_cost"`
	FetchedAt       time.Time `json:"fetched_at"`
}
