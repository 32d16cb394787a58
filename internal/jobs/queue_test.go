package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newJobsDB(t *testing.T) *Queue {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Job{}))
	return NewQueue(db)
}

func TestEnqueueAndClaim(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "sync the book")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.NotEmpty(t, job.JobRef)

	claimed, err := queue.ClaimNext()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	// Queue is now empty: the claimed job is running, not available.
	next, err := queue.ClaimNext()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestClaimNextSingleWinnerUnderContention(t *testing.T) {
	queue := newJobsDB(t)

	_, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)

	const claimers = 8
	var (
		wg      sync.WaitGroup
		winners int64
	)
	errs := make(chan error, claimers)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := queue.ClaimNext()
			if err != nil {
				errs <- err
				return
			}
			if claimed != nil {
				atomic.AddInt64(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), winners)
}

func TestClaimSkipsFutureAvailableAt(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)
	require.NoError(t, queue.FailOrRetry(job, "gateway hiccup", DefaultRetryDelay))

	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, job.AvailableAt.After(time.Now().UTC().Add(2*time.Second)))

	// Not yet eligible: available_at sits in the future.
	claimed, err := queue.ClaimNext()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFailOrRetryExhaustsAttempts(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)

	for i := 1; i < DefaultMaxAttempts; i++ {
		require.NoError(t, queue.FailOrRetry(job, "attempt failed", 0))
		assert.Equal(t, StatusQueued, job.Status)
		assert.Nil(t, job.CompletedAt)
	}

	require.NoError(t, queue.FailOrRetry(job, "attempt failed", 0))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.Attempts)
	require.NotNil(t, job.CompletedAt)
}

func TestCompleteStoresResult(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)
	require.NoError(t, queue.Complete(job, map[string]int{"positions": 4}))

	got, err := queue.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.JSONEq(t, `{"positions":4}`, string(got.Result))
	require.NotNil(t, got.CompletedAt)
}

func TestArchiveIsIdempotentAndHidesFromListings(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)
	require.NoError(t, queue.Archive(job))
	archivedAt := *job.ArchivedAt

	require.NoError(t, queue.Archive(job))
	assert.Equal(t, archivedAt, *job.ArchivedAt)

	visible, err := queue.List(false, 10)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := queue.List(true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Archived jobs never get claimed.
	claimed, err := queue.ClaimNext()
	require.NoError(t, err)
	assert.Nil(t, claimed)

	// But stay reachable by id.
	got, err := queue.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRerunRequiresFailedStatus(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypePositionsSync, PositionsSyncPayload{}, "api", "")
	require.NoError(t, err)

	_, err = queue.Rerun(job)
	assert.ErrorIs(t, err, ErrNotRerunnable)
}

func TestRerunClonesAndArchivesOriginal(t *testing.T) {
	queue := newJobsDB(t)

	job, err := queue.Enqueue(TypeContractsSync, ContractsSyncPayload{}, "api", "refresh CL")
	require.NoError(t, err)
	for i := 0; i < DefaultMaxAttempts; i++ {
		require.NoError(t, queue.FailOrRetry(job, "gateway down", 0))
	}
	require.Equal(t, StatusFailed, job.Status)

	fresh, err := queue.Rerun(job)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, fresh.ID)
	assert.NotEqual(t, job.JobRef, fresh.JobRef)
	assert.Equal(t, job.JobType, fresh.JobType)
	assert.Equal(t, string(job.Payload), string(fresh.Payload))
	assert.Equal(t, "refresh CL", fresh.RequestText)
	assert.Equal(t, 0, fresh.Attempts)
	assert.Equal(t, StatusQueued, fresh.Status)
	require.NotNil(t, job.ArchivedAt)
}

func TestEnqueueIfIdle(t *testing.T) {
	queue := newJobsDB(t)

	first, err := queue.EnqueueIfIdle(TypePositionsSync, PositionsSyncPayload{}, "order_worker", "")
	require.NoError(t, err)
	require.NotNil(t, first)

	// A queued job of the same type suppresses the trigger.
	second, err := queue.EnqueueIfIdle(TypePositionsSync, PositionsSyncPayload{}, "order_worker", "")
	require.NoError(t, err)
	assert.Nil(t, second)

	// Other types are unaffected.
	other, err := queue.EnqueueIfIdle(TypeContractsSync, ContractsSyncPayload{}, "api", "")
	require.NoError(t, err)
	require.NotNil(t, other)

	// Once the active job completes, the trigger fires again.
	require.NoError(t, queue.Complete(first, nil))
	third, err := queue.EnqueueIfIdle(TypePositionsSync, PositionsSyncPayload{}, "order_worker", "")
	require.NoError(t, err)
	require.NotNil(t, third)
}
