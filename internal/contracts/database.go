package contracts

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// ActiveContracts returns the active catalog rows for (symbol, sec_type),
// optionally narrowed by strike and right, ordered by ascending expiry.
func (d *Database) ActiveContracts(symbol, secType string, strike *float64, right string) ([]ContractRef, error) {
	query := d.db.
		Where("symbol = ? AND sec_type = ? AND is_active = ?", symbol, secType, true).
		Order("contract_expiry asc")
	if strike != nil {
		query = query.Where("strike = ?", *strike)
	}
	if right != "" {
		query = query.Where("right = ?", right)
	}

	var refs []ContractRef
	if err := query.Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// ByConID fetches one catalog row by broker contract id, nil when absent.
func (d *Database) ByConID(conID int64) (*ContractRef, error) {
	var ref ContractRef
	if err := d.db.Where("con_id = ?", conID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// List returns catalog rows for display, active first, newest expiry last.
func (d *Database) List(symbol string, activeOnly bool, limit int) ([]ContractRef, error) {
	query := d.db.Order("symbol asc, contract_expiry asc")
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var refs []ContractRef
	if err := query.Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
