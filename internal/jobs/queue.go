package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRetryDelay spaces retries of a failed attempt.
const DefaultRetryDelay = 5 * time.Second

// ErrNotRerunnable is returned when Rerun targets a job that is not
// terminally failed.
var ErrNotRerunnable = errors.New("only failed jobs can be rerun")

// Queue owns the durable job rows. Every transition is a row-level
// conditional update, so any number of worker processes can share it.
type Queue struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue inserts a queued job available immediately.
func (q *Queue) Enqueue(jobType string, payload Payload, source, requestText string) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", jobType, err)
	}

	job := &Job{
		JobRef:      uuid.New().String(),
		JobType:     jobType,
		Status:      StatusQueued,
		Payload:     raw,
		Source:      source,
		RequestText: requestText,
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
		AvailableAt: q.now(),
	}
	if err := q.db.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueIfIdle enqueues only when no non-archived job of the same type is
// queued or running. Returns (nil, nil) when an active job already exists;
// the idempotent-trigger pattern that keeps sync storms out of the queue.
func (q *Queue) EnqueueIfIdle(jobType string, payload Payload, source, requestText string) (*Job, error) {
	var active Job
	err := q.db.
		Where("job_type = ? AND archived_at IS NULL AND status IN ?", jobType, []string{StatusQueued, StatusRunning}).
		First(&active).Error
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return q.Enqueue(jobType, payload, source, requestText)
}

// ClaimNext atomically claims the oldest available queued job, transitioning
// it to running. Exactly one concurrent claimer wins any given row; losers
// move on to the next candidate. Returns (nil, nil) on an empty queue.
func (q *Queue) ClaimNext() (*Job, error) {
	for {
		now := q.now()
		var candidate Job
		err := q.db.
			Where("status = ? AND available_at <= ? AND archived_at IS NULL", StatusQueued, now).
			Order("created_at asc").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		claim := q.db.Model(&Job{}).
			Where("id = ? AND status = ?", candidate.ID, StatusQueued).
			Updates(map[string]interface{}{
				"status":     StatusRunning,
				"started_at": now,
				"updated_at": now,
			})
		if claim.Error != nil {
			return nil, claim.Error
		}
		if claim.RowsAffected == 0 {
			// Another worker won the row; scan again.
			continue
		}

		var claimed Job
		if err := q.db.First(&claimed, candidate.ID).Error; err != nil {
			return nil, err
		}
		return &claimed, nil
	}
}

// CountEligible returns how many queued jobs are currently claimable.
func (q *Queue) CountEligible() (int64, error) {
	var count int64
	err := q.db.Model(&Job{}).
		Where("status = ? AND available_at <= ? AND archived_at IS NULL", StatusQueued, q.now()).
		Count(&count).Error
	return count, err
}

// Complete transitions a running job to completed and stores its result.
func (q *Queue) Complete(job *Job, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result for job %d: %w", job.ID, err)
	}
	now := q.now()
	job.Status = StatusCompleted
	job.Result = raw
	job.CompletedAt = &now
	job.UpdatedAt = now
	return q.db.Save(job).Error
}

// FailOrRetry records a failed attempt. When attempts reach max_attempts the
// job goes terminal failed; otherwise it returns to queued with available_at
// pushed out by retryDelay. A zero retryDelay requeues immediately.
func (q *Queue) FailOrRetry(job *Job, errorText string, retryDelay time.Duration) error {
	now := q.now()
	job.Attempts++
	job.LastError = errorText
	job.UpdatedAt = now

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		job.CompletedAt = &now
	} else {
		job.Status = StatusQueued
		job.AvailableAt = now.Add(retryDelay)
	}
	return q.db.Save(job).Error
}

// Archive soft-hides a job from queue scans and default listings. Idempotent;
// the row stays queryable by id.
func (q *Queue) Archive(job *Job) error {
	if job.ArchivedAt != nil {
		return nil
	}
	now := q.now()
	job.ArchivedAt = &now
	job.UpdatedAt = now
	return q.db.Save(job).Error
}

// Rerun enqueues a fresh job with the failed job's type, payload, and source,
// then archives the original. History is never mutated in place.
func (q *Queue) Rerun(job *Job) (*Job, error) {
	if job.Status != StatusFailed {
		return nil, ErrNotRerunnable
	}

	now := q.now()
	fresh := &Job{
		JobRef:      uuid.New().String(),
		JobType:     job.JobType,
		Status:      StatusQueued,
		Payload:     job.Payload,
		Source:      job.Source,
		RequestText: job.RequestText,
		Attempts:    0,
		MaxAttempts: job.MaxAttempts,
		AvailableAt: now,
	}

	tx := q.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Create(fresh).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if job.ArchivedAt == nil {
		job.ArchivedAt = &now
		job.UpdatedAt = now
		if err := tx.Save(job).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

// Get fetches one job by id, nil when absent. Archived jobs stay reachable.
func (q *Queue) Get(id uint) (*Job, error) {
	var job Job
	if err := q.db.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// List returns recent jobs, newest first, excluding archived ones unless
// includeArchived is set.
func (q *Queue) List(includeArchived bool, limit int) ([]Job, error) {
	query := q.db.Order("created_at desc")
	if !includeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var all []Job
	if err := query.Find(&all).Error; err != nil {
		return nil, err
	}
	return all, nil
}
