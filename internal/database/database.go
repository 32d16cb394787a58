package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/desk-api/internal/accounts"
	"github.com/ksred/desk-api/internal/contracts"
	"github.com/ksred/desk-api/internal/database/migrations"
	"github.com/ksred/desk-api/internal/jobs"
	"github.com/ksred/desk-api/internal/orders"
	"github.com/ksred/desk-api/internal/positions"
	"github.com/ksred/desk-api/internal/watchlists"
	"github.com/ksred/desk-api/internal/workers"
)

// NewDatabase initializes and returns a new GORM DB connection. The server
// and both workers open the same file; the busy timeout keeps concurrent
// claim updates from failing on the sqlite write lock.
func NewDatabase(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewInMemory opens a private in-memory database, used by tests.
func NewInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the desk uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&accounts.Account{},
		&contracts.ContractRef{},
		&positions.Position{},
		&jobs.Job{},
		&orders.Order{},
		&orders.OrderEvent{},
		&watchlists.WatchList{},
		&watchlists.WatchListInstrument{},
		&workers.WorkerHeartbeat{},
	)
	if err != nil {
		return err
	}

	if err := migrations.AddQueueIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
