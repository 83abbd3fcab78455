package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/repository"
)

// JobRepositoryInterface defines the repository interface for job persistence
type JobRepositoryInterface interface {
	Create(ctx context.Context, j *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	HasActive(ctx context.Context, documentID string) (bool, error)
	Advance(ctx context.Context, id string, completedChunks, currentBatch, totalBatches int, currentStep string, cardsDelta int) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	ListRecent(ctx context.Context, limit int) ([]*domain.Job, error)
}

// Options carries job creation parameters beyond the chunk plan.
type Options struct {
	Source        string
	Week          string
	BatchSize     int
	PacingSeconds int
}

// Tracker owns the job state machine. All transitions funnel through the
// repository's guarded updates, so terminal states are never re-entered no
// matter how late an orphaned worker reports in.
type Tracker struct {
	repo JobRepositoryInterface
}

func NewTracker(repo JobRepositoryInterface) *Tracker {
	return &Tracker{repo: repo}
}

// Create allocates a queued job for the document. The active-job check is
// advisory: two creators racing past it both succeed at the data layer, so
// callers treat a duplicate as a recoverable conflict, not corruption.
func (t *Tracker) Create(ctx context.Context, doc *domain.Document, totalChunks int, opts Options) (*domain.Job, error) {
	if totalChunks <= 0 {
		return nil, domain.ErrEmptyDocument
	}

	active, err := t.repo.HasActive(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrDuplicateActiveJob
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		Source:        opts.Source,
		Week:          opts.Week,
		Status:        domain.JobStatusQueued,
		TotalChunks:   totalChunks,
		CurrentStep:   "Queued",
		BatchSize:     opts.BatchSize,
		PacingSeconds: opts.PacingSeconds,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := domain.ValidateJob(job); err != nil {
		return nil, err
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Advance records chunk/batch progress. The progress percentage is derived in
// the store and never decreases; a call against a terminal job reports
// ErrJobAlreadyTerminal and changes nothing.
func (t *Tracker) Advance(ctx context.Context, jobID string, completedChunks, currentBatch, totalBatches int, currentStep string, cardsDelta int) error {
	err := t.repo.Advance(ctx, jobID, completedChunks, currentBatch, totalBatches, currentStep, cardsDelta)
	return t.mapError(err)
}

// MarkCompleted finishes the job at exactly 100 percent. Idempotent.
func (t *Tracker) MarkCompleted(ctx context.Context, jobID string) error {
	return t.mapError(t.repo.MarkCompleted(ctx, jobID))
}

// MarkFailed records the error verbatim and keeps whatever progress was
// reached. Idempotent.
func (t *Tracker) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return t.mapError(t.repo.MarkFailed(ctx, jobID, errMsg))
}

// Get returns the current job snapshot.
func (t *Tracker) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, t.mapError(err)
	}
	return job, nil
}

// ListRecent returns the newest jobs first.
func (t *Tracker) ListRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	return t.repo.ListRecent(ctx, limit)
}

func (t *Tracker) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrJobNotFound):
		return domain.ErrJobNotFound
	case errors.Is(err, repository.ErrJobTerminal):
		return domain.ErrJobAlreadyTerminal
	default:
		return err
	}
}
