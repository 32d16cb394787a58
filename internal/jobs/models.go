package jobs

import (
	"time"

	"gorm.io/gorm"
)

// Job statuses. queued → running → completed | queued (retry) | failed.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job types form a closed enum; payload shapes are defined in payload.go.
const (
	TypePositionsSync   = "positions.sync"
	TypeContractsSync   = "contracts.sync"
	TypePretradeCheck   = "pretrade.check"
	TypeWatchlistQuotes = "watchlist-quotes-refresh"
)

// DefaultMaxAttempts bounds retries before a job goes terminal failed.
const DefaultMaxAttempts = 3

// Job is one unit of deferred work. Retry state lives in explicit row fields
// (attempts, available_at); the claim transition is a single conditional
// update so concurrent workers cannot both run the same job.
type Job struct {
	gorm.Model  `json:"-"`
	JobRef      string     `gorm:"uniqueIndex" json:"job_ref"`
	JobType     string     `gorm:"index" json:"job_type"`
	Status      string     `gorm:"index" json:"status"`
	Payload     []byte     `gorm:"type:text" json:"-"`
	Result      []byte     `gorm:"type:text" json:"-"`
	Source      string     `json:"source"`
	RequestText string     `gorm:"type:text" json:"request_text,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	AvailableAt time.Time  `json:"available_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
}

// Terminal reports whether the job can change state again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
