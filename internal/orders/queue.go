package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/desk-api/internal/broker"
)

// Database owns the durable order rows and their audit trail. Every order
// write that changes state commits together with its audit event, so an
// order can never be updated without the matching event row.
type Database struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRequest carries the fields callers set when queueing an order.
type CreateRequest struct {
	AccountID   uint
	Symbol      string
	SecType     string
	Exchange    string
	Currency    string
	Side        string
	Quantity    int
	TIF         string
	Source      string
	RequestText string
	ConID       int64
}

// Create inserts a queued order and its order_created event in one
// transaction.
func (d *Database) Create(req CreateRequest) (*Order, error) {
	if req.AccountID == 0 {
		return nil, errors.New("account_id is required")
	}
	if req.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	side := req.Side
	if side != "BUY" && side != "SELL" {
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", req.Side)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1, got %d", req.Quantity)
	}

	order := &Order{
		OrderRef:    uuid.New().String(),
		AccountID:   req.AccountID,
		Symbol:      req.Symbol,
		SecType:     defaultString(req.SecType, "FUT"),
		Exchange:    defaultString(req.Exchange, "NYMEX"),
		Currency:    defaultString(req.Currency, "USD"),
		Side:        side,
		Quantity:    req.Quantity,
		OrderType:   "MKT",
		TIF:         defaultString(req.TIF, "DAY"),
		Status:      StatusQueued,
		Source:      defaultString(req.Source, "api"),
		ConID:       req.ConID,
		RequestText: req.RequestText,
	}

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return d.appendEvent(tx, order, EventOrderCreated,
			fmt.Sprintf("Queued %s %d %s %s", order.Side, order.Quantity, order.Symbol, order.SecType))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ClaimForSubmission atomically transitions one order from queued to
// submitting. Exactly one concurrent claimer wins; everyone else gets nil.
func (d *Database) ClaimForSubmission(orderID uint) (*Order, error) {
	now := d.now()
	claim := d.db.Model(&Order{}).
		Where("id = ? AND status = ?", orderID, StatusQueued).
		Updates(map[string]interface{}{"status": StatusSubmitting, "updated_at": now})
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, nil
	}

	var order Order
	if err := d.db.First(&order, orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Cancel transitions queued → cancelled, conditionally: an order a worker has
// already claimed into submitting cannot be cancelled from the API. Returns
// false when the order was no longer queued.
func (d *Database) Cancel(orderID uint) (bool, error) {
	now := d.now()
	cancelled := false

	err := d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Order{}).
			Where("id = ? AND status = ?", orderID, StatusQueued).
			Updates(map[string]interface{}{
				"status":       StatusCancelled,
				"completed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		cancelled = true

		var order Order
		if err := tx.First(&order, orderID).Error; err != nil {
			return err
		}
		return d.appendEvent(tx, &order, EventOrderCancelled, "Cancelled from API while still queued")
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

// ListQueuedIDs returns ids of queued orders, oldest first, bounded to keep
// each worker pass short.
func (d *Database) ListQueuedIDs(limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 20
	}
	var ids []uint
	err := d.db.Model(&Order{}).
		Where("status = ?", StatusQueued).
		Order("created_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ApplyProgress folds one broker snapshot into the order, returning whether
// anything changed. Filled quantity is clamped non-negative; completed_at is
// set exactly once when the status first turns terminal. Pure struct update:
// pair it with SaveWithEvent to persist.
func (d *Database) ApplyProgress(order *Order, snapshot *broker.OrderSnapshot) bool {
	type progressState struct {
		status        string
		filled        float64
		avgFill       *float64
		brokerOrderID int64
		brokerPermID  int64
	}
	previous := progressState{order.Status, order.FilledQuantity, order.AvgFillPrice, order.BrokerOrderID, order.BrokerPermID}

	filled := snapshot.Filled
	if filled < 0 {
		filled = 0
	}
	order.Status = NormalizeStatus(snapshot.Status, filled)
	order.FilledQuantity = filled
	if snapshot.AvgFillPrice > 0 {
		price := snapshot.AvgFillPrice
		order.AvgFillPrice = &price
	}
	if snapshot.BrokerOrderID != 0 {
		order.BrokerOrderID = snapshot.BrokerOrderID
	}
	if snapshot.BrokerPermID != 0 {
		order.BrokerPermID = snapshot.BrokerPermID
	}
	if order.Terminal() && order.CompletedAt == nil {
		now := d.now()
		order.CompletedAt = &now
	}

	current := progressState{order.Status, order.FilledQuantity, order.AvgFillPrice, order.BrokerOrderID, order.BrokerPermID}
	if previous.avgFill != nil && current.avgFill != nil {
		if *previous.avgFill == *current.avgFill {
			current.avgFill = previous.avgFill
		}
	}
	return previous != current
}

// SaveWithEvent persists the order and appends an audit event in one
// transaction.
func (d *Database) SaveWithEvent(order *Order, eventType, message string) error {
	order.UpdatedAt = d.now()
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(order).Error; err != nil {
			return err
		}
		return d.appendEvent(tx, order, eventType, message)
	})
}

// FailTerminal marks the order failed with a descriptive last_error, setting
// completed_at once, and records the event.
func (d *Database) FailTerminal(order *Order, eventType, message string) error {
	order.Status = StatusFailed
	order.LastError = message
	if order.CompletedAt == nil {
		now := d.now()
		order.CompletedAt = &now
	}
	return d.SaveWithEvent(order, eventType, message)
}

func (d *Database) appendEvent(tx *gorm.DB, order *Order, eventType, message string) error {
	return tx.Create(&OrderEvent{
		OrderID:        order.ID,
		EventType:      eventType,
		Message:        message,
		Status:         order.Status,
		FilledQuantity: order.FilledQuantity,
		AvgFillPrice:   order.AvgFillPrice,
		BrokerOrderID:  order.BrokerOrderID,
		CreatedAt:      d.now(),
	}).Error
}

// Get fetches one order by id, nil when absent.
func (d *Database) Get(orderID uint) (*Order, error) {
	var order Order
	if err := d.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// List returns recent orders, newest first.
func (d *Database) List(limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var all []Order
	if err := d.db.Order("created_at desc").Limit(limit).Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}

// ListEvents returns an order's audit trail, oldest first.
func (d *Database) ListEvents(orderID uint) ([]OrderEvent, error) {
	var events []OrderEvent
	if err := d.db.Where("order_id = ?", orderID).Order("id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
