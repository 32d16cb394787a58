package watchlists

import (
	"time"

	"gorm.io/gorm"
)

// WatchList is a named collection of instruments the desk keeps quotes for.
// Position drives the display order; new lists go to the bottom.
type WatchList struct {
	gorm.Model  `json:"-"`
	Name        string `gorm:"uniqueIndex:uq_watch_lists_name" json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `gorm:"not null;default:0" json:"position"`
}

func (WatchList) TableName() string { return "watch_lists" }

// WatchListInstrument is one resolved contract on a list, with the last quote
// the refresh job wrote for it.
type WatchListInstrument struct {
	gorm.Model  `json:"-"`
	WatchListID uint `gorm:"uniqueIndex:uq_watch_list_con_id,priority:1" json:"watch_list_id"`

	ConID          int64    `gorm:"column:con_id;uniqueIndex:uq_watch_list_con_id,priority:2" json:"con_id"`
	Symbol         string   `json:"symbol"`
	SecType        string   `json:"sec_type"`
	Exchange       string   `json:"exchange"`
	Currency       string   `json:"currency"`
	LocalSymbol    string   `json:"local_symbol,omitempty"`
	TradingClass   string   `json:"trading_class,omitempty"`
	ContractExpiry string   `json:"contract_expiry,omitempty"`
	Multiplier     string   `json:"multiplier,omitempty"`
	Strike         *float64 `json:"strike,omitempty"`
	Right          string   `json:"right,omitempty"`
	DisplayName    string   `json:"display_name"`

	Bid     *float64   `json:"bid,omitempty"`
	Ask     *float64   `json:"ask,omitempty"`
	Last    *float64   `json:"last,omitempty"`
	Close   *float64   `json:"close,omitempty"`
	QuoteAt *time.Time `json:"quote_at,omitempty"`
}

func (WatchListInstrument) TableName() string { return "watch_list_instruments" }
