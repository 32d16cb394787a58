package accounts

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

// GetByID fetches one account, nil when absent.
func (d *Database) GetByID(id uint) (*Account, error) {
	var account Account
	if err := d.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByIdentifier fetches an account by its raw broker identifier.
func (d *Database) GetByIdentifier(identifier string) (*Account, error) {
	var account Account
	if err := d.db.Where("account = ?", identifier).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// List returns all accounts ordered by identifier.
func (d *Database) List() ([]Account, error) {
	var all []Account
	if err := d.db.Order("account asc").Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}

// GetOrCreate resolves broker account identifiers to row ids, creating rows
// lazily for identifiers seen for the first time. Runs against tx so callers
// can fold it into a wider transaction.
func GetOrCreate(tx *gorm.DB, identifiers []string) (map[string]uint, error) {
	lookup := make(map[string]uint, len(identifiers))
	for _, identifier := range identifiers {
		var account Account
		err := tx.Where("account = ?", identifier).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = Account{Account: identifier}
			if err := tx.Create(&account).Error; err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		lookup[identifier] = account.ID
	}
	return lookup, nil
}
