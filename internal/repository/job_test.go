//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDocumentForJob(ctx context.Context, t *testing.T, docRepo *DocumentRepository) *domain.Document {
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Name:      "constitution-week3-" + uuid.NewString() + ".pdf",
		Path:      "/data/constitution.pdf",
		PageCount: 47,
		ByteSize:  1024,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, docRepo.Create(ctx, doc))
	return doc
}

func newQueuedJob(documentID string) *domain.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Job{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		Source:        "Constitution Notes",
		Week:          "3",
		Status:        domain.JobStatusQueued,
		TotalChunks:   5,
		CurrentStep:   "Queued",
		BatchSize:     3,
		PacingSeconds: 5,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retrieved.ID)
	assert.Equal(t, doc.ID, retrieved.DocumentID)
	assert.Equal(t, domain.JobStatusQueued, retrieved.Status)
	assert.Equal(t, 5, retrieved.TotalChunks)
	assert.Equal(t, 0, retrieved.CompletedChunks)
	assert.Equal(t, 0, retrieved.ProgressPercentage)
	assert.Empty(t, retrieved.Error)
	assert.Nil(t, retrieved.CompletedAt)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	jobRepo := NewJobRepository(pool)

	_, err := jobRepo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobRepository_HasActive(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)

	active, err := jobRepo.HasActive(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, active)

	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	active, err = jobRepo.HasActive(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, jobRepo.MarkCompleted(ctx, job.ID))

	active, err = jobRepo.HasActive(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestJobRepository_ClaimQueued(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)

	job1 := newQueuedJob(doc.ID)
	job2 := newQueuedJob(doc.ID)
	job2.CreatedAt = job1.CreatedAt.Add(time.Second)
	job3 := newQueuedJob(doc.ID)
	job3.CreatedAt = job1.CreatedAt.Add(2 * time.Second)

	require.NoError(t, jobRepo.Create(ctx, job1))
	require.NoError(t, jobRepo.Create(ctx, job2))
	require.NoError(t, jobRepo.Create(ctx, job3))

	claimed, err := jobRepo.ClaimQueued(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, job1.ID, claimed[0].ID)
	assert.Equal(t, job2.ID, claimed[1].ID)

	for _, job := range claimed {
		retrieved, err := jobRepo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, retrieved.Status)
	}

	remaining, err := jobRepo.GetByID(ctx, job3.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, remaining.Status)
}

func TestJobRepository_Advance(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	err := jobRepo.Advance(ctx, job.ID, 2, 1, 4, "Generating cards for pages 9-18", 12)
	require.NoError(t, err)

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, retrieved.Status)
	assert.Equal(t, 2, retrieved.CompletedChunks)
	assert.Equal(t, 1, retrieved.CurrentBatch)
	assert.Equal(t, 4, retrieved.TotalBatches)
	assert.Equal(t, 12, retrieved.TotalCards)
	assert.Equal(t, 40, retrieved.ProgressPercentage)
	assert.Equal(t, "Generating cards for pages 9-18", retrieved.CurrentStep)
}

func TestJobRepository_Advance_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.Advance(ctx, job.ID, 3, 2, 4, "step", 0))
	require.NoError(t, jobRepo.Advance(ctx, job.ID, 2, 2, 4, "step", 0))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, retrieved.ProgressPercentage)
}

func TestJobRepository_Advance_TerminalJob(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))
	require.NoError(t, jobRepo.MarkCompleted(ctx, job.ID))

	err := jobRepo.Advance(ctx, job.ID, 5, 4, 4, "late", 0)
	assert.ErrorIs(t, err, ErrJobTerminal)
}

func TestJobRepository_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	require.NoError(t, jobRepo.MarkCompleted(ctx, job.ID))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, retrieved.Status)
	assert.Equal(t, 100, retrieved.ProgressPercentage)
	assert.NotNil(t, retrieved.CompletedAt)

	// Completing twice is safe.
	require.NoError(t, jobRepo.MarkCompleted(ctx, job.ID))

	// Completing a failed job is not.
	failed := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, failed))
	require.NoError(t, jobRepo.MarkFailed(ctx, failed.ID, "generation error"))
	assert.ErrorIs(t, jobRepo.MarkCompleted(ctx, failed.ID), ErrJobTerminal)
}

func TestJobRepository_MarkFailed_PreservesProgress(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))
	require.NoError(t, jobRepo.Advance(ctx, job.ID, 3, 2, 4, "step", 20))

	require.NoError(t, jobRepo.MarkFailed(ctx, job.ID, "generation call failed: timeout"))

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, retrieved.Status)
	assert.Equal(t, "generation call failed: timeout", retrieved.Error)
	assert.Equal(t, 3, retrieved.CompletedChunks)
	assert.Equal(t, 60, retrieved.ProgressPercentage)
	assert.Equal(t, 20, retrieved.TotalCards)
	assert.NotNil(t, retrieved.CompletedAt)

	// Failing twice is safe.
	require.NoError(t, jobRepo.MarkFailed(ctx, job.ID, "other"))
}

func TestJobRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)

	for i := 0; i < 5; i++ {
		job := newQueuedJob(doc.ID)
		job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, jobRepo.Create(ctx, job))
	}

	jobs, err := jobRepo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))
}

func TestJobRepository_RequeueStale(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	jobRepo := NewJobRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)
	job := newQueuedJob(doc.ID)
	require.NoError(t, jobRepo.Create(ctx, job))

	claimed, err := jobRepo.ClaimQueued(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Push the heartbeat into the past.
	_, err = pool.Exec(ctx, `UPDATE jobs SET updated_at = now() - interval '20 minutes' WHERE id = $1`, job.ID)
	require.NoError(t, err)

	ids, err := jobRepo.RequeueStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, job.ID, ids[0])

	retrieved, err := jobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, retrieved.Status)
}
