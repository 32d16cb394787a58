package migrations

import (
	"gorm.io/gorm"
)

// AddQueueIndexes creates the indexes the worker scan queries lean on.
// Using raw SQL for index creation to have more control over index types.
func AddQueueIndexes(db *gorm.DB) error {
	indexes := []string{
		// Job claim scan: eligible queued jobs by availability, oldest first
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim_scan
		 ON jobs(status, available_at, created_at)`,

		// Archived filtering on job listings
		`CREATE INDEX IF NOT EXISTS idx_jobs_archived_at
		 ON jobs(archived_at)`,

		// Order claim scan: queued orders oldest first
		`CREATE INDEX IF NOT EXISTS idx_orders_claim_scan
		 ON orders(status, created_at)`,

		// Audit trail reads per order
		`CREATE INDEX IF NOT EXISTS idx_order_events_order_id
		 ON order_events(order_id, id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
