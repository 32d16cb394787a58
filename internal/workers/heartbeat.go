// Package workers tracks liveness of the desk's long-running processes.
package workers

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Worker types with a heartbeat row.
const (
	TypeOrders = "orders"
	TypeJobs   = "jobs"
)

// Heartbeat statuses.
const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusError    = "error"
	StatusStopped  = "stopped"
)

// WorkerHeartbeat is one row per logical worker type, upserted on every
// health tick. Liveness display only; nothing reads it for correctness.
type WorkerHeartbeat struct {
	gorm.Model  `json:"-"`
	WorkerType  string    `gorm:"uniqueIndex:uq_worker_heartbeats_worker_type" json:"worker_type"`
	Status      string    `json:"status"`
	Details     string    `gorm:"type:text" json:"details,omitempty"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Heartbeats upserts and lists worker heartbeat rows.
type Heartbeats struct {
	db *gorm.DB
}

func NewHeartbeats(db *gorm.DB) *Heartbeats {
	return &Heartbeats{db: db}
}

// Upsert records a health tick for one worker type.
func (h *Heartbeats) Upsert(workerType, status, details string) error {
	now := time.Now().UTC()
	var row WorkerHeartbeat
	err := h.db.Where("worker_type = ?", workerType).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = WorkerHeartbeat{
			WorkerType:  workerType,
			Status:      status,
			Details:     details,
			HeartbeatAt: now,
		}
		return h.db.Create(&row).Error
	}
	if err != nil {
		return err
	}

	row.Status = status
	row.Details = details
	row.HeartbeatAt = now
	return h.db.Save(&row).Error
}

// List returns all heartbeat rows ordered by worker type.
func (h *Heartbeats) List() ([]WorkerHeartbeat, error) {
	var rows []WorkerHeartbeat
	if err := h.db.Order("worker_type asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
