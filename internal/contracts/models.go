package contracts

import (
	"time"

	"gorm.io/gorm"
)

// ContractRef is one row of the local contract catalog: a broker-assigned
// con_id plus the descriptive fields needed to resolve trading requests
// without a live gateway round-trip. Rows are never deleted; contracts the
// broker stops returning are flipped inactive so order history keeps its
// references.
type ContractRef struct {
	gorm.Model      `json:"-"`
	ConID           int64     `gorm:"uniqueIndex;column:con_id" json:"con_id"`
	Symbol          string    `gorm:"index:ix_contracts_fut_lookup,priority:1;index:ix_contracts_option_lookup,priority:1" json:"symbol"`
	SecType         string    `gorm:"index:ix_contracts_fut_lookup,priority:2;index:ix_contracts_option_lookup,priority:2" json:"sec_type"`
	Exchange        string    `json:"exchange"`
	Currency        string    `json:"currency"`
	LocalSymbol     string    `json:"local_symbol,omitempty"`
	TradingClass    string    `json:"trading_class,omitempty"`
	ContractMonth   string    `json:"contract_month,omitempty"` // YYYY-MM, derived from ContractExpiry
	ContractExpiry  string    `gorm:"index:ix_contracts_fut_lookup,priority:4;index:ix_contracts_option_lookup,priority:6" json:"contract_expiry,omitempty"`
	Multiplier      string    `json:"multiplier,omitempty"`
	Strike          *float64  `gorm:"index:ix_contracts_option_lookup,priority:4" json:"strike,omitempty"`
	Right           string    `gorm:"index:ix_contracts_option_lookup,priority:5" json:"right,omitempty"`
	PrimaryExchange string    `json:"primary_exchange,omitempty"`
	IsActive        bool      `gorm:"index:ix_contracts_fut_lookup,priority:3;index:ix_contracts_option_lookup,priority:3" json:"is_active"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// TableName keeps the table name from the original schema.
func (ContractRef) TableName() string { return "contracts" }

// InstrumentSpec names one defining security spec for catalog syncs,
// e.g. CL futures on NYMEX.
type InstrumentSpec struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}
