package orders

import (
	"time"

	"gorm.io/gorm"
)

// Order statuses. queued → submitting → {submitted → partially_filled →
// filled} | cancelled | rejected | failed. submitting is a transient claim
// state preventing two workers from submitting the same order.
const (
	StatusQueued          = "queued"
	StatusSubmitting      = "submitting"
	StatusSubmitted       = "submitted"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
	StatusFailed          = "failed"
)

// Event types recorded on the audit trail.
const (
	EventOrderCreated        = "order_created"
	EventContractQualified   = "contract_qualified"
	EventOrderSubmitted      = "order_submitted"
	EventOrderProgress       = "order_progress"
	EventOrderFinal          = "order_final"
	EventOrderTimeout        = "order_timeout"
	EventOrderError          = "order_error"
	EventOrderCancelled      = "order_cancelled"
	EventBrokerAdvancedError = "broker_advanced_error"
)

// IsTerminal reports whether a status ends the order's lifecycle.
func IsTerminal(status string) bool {
	switch status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Order is a trading intent and its execution record. Instrument descriptor
// fields beyond symbol/sec_type/exchange/currency are filled in during
// qualification. Once the status is terminal, completed_at is set exactly
// once and only diagnostic events may still be appended.
type Order struct {
	gorm.Model     `json:"-"`
	OrderRef       string     `gorm:"uniqueIndex" json:"order_ref"`
	AccountID      uint       `gorm:"index" json:"account_id"`
	Symbol         string     `json:"symbol"`
	SecType        string     `json:"sec_type"`
	Exchange       string     `json:"exchange"`
	Currency       string     `json:"currency"`
	Side           string     `json:"side"` // BUY or SELL
	Quantity       int        `json:"quantity"`
	OrderType      string     `json:"order_type"` // MKT
	TIF            string     `gorm:"column:tif" json:"tif"`
	Status         string     `gorm:"index" json:"status"`
	Source         string     `json:"source"`
	ConID          int64      `gorm:"column:con_id" json:"con_id,omitempty"`
	LocalSymbol    string     `json:"local_symbol,omitempty"`
	TradingClass   string     `json:"trading_class,omitempty"`
	ContractMonth  string     `json:"contract_month,omitempty"`
	ContractExpiry string     `json:"contract_expiry,omitempty"`
	BrokerOrderID  int64      `json:"broker_order_id,omitempty"`
	BrokerPermID   int64      `json:"broker_perm_id,omitempty"`
	FilledQuantity float64    `json:"filled_quantity"`
	AvgFillPrice   *float64   `json:"avg_fill_price,omitempty"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	RequestText    string     `gorm:"type:text" json:"request_text,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the order has reached a terminal status.
func (o *Order) Terminal() bool { return IsTerminal(o.Status) }

// OrderEvent is one immutable audit row: a state transition or significant
// broker callback, with a snapshot of the order at that moment. Rows are
// never updated or deleted.
type OrderEvent struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	OrderID        uint      `gorm:"index" json:"order_id"`
	EventType      string    `json:"event_type"`
	Message        string    `gorm:"type:text" json:"message"`
	Status         string    `json:"status"`
	FilledQuantity float64   `json:"filled_quantity"`
	AvgFillPrice   *float64  `json:"avg_fill_price,omitempty"`
	BrokerOrderID  int64     `json:"broker_order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
