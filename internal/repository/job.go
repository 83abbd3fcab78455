package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revisehq/cardsmith/internal/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned when an update targets a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
)

const jobColumns = `id, document_id, source, week, status, total_chunks, completed_chunks,
	current_batch, total_batches, current_step, total_cards, progress_percentage,
	error, batch_size, pacing_seconds, created_at, updated_at, completed_at`

type JobRepository struct {
	db dbtx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: pool}
}

func NewJobRepositoryWithTx(tx pgx.Tx) *JobRepository {
	return &JobRepository{db: tx}
}

func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, document_id, source, week, status, total_chunks, completed_chunks,
		                   current_batch, total_batches, current_step, total_cards, progress_percentage,
		                   error, batch_size, pacing_seconds, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		j.ID, j.DocumentID, j.Source, j.Week, j.Status, j.TotalChunks, j.CompletedChunks,
		j.CurrentBatch, j.TotalBatches, j.CurrentStep, j.TotalCards, j.ProgressPercentage,
		nullableString(j.Error), j.BatchSize, j.PacingSeconds, j.CreatedAt, j.UpdatedAt, j.CompletedAt,
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// HasActive reports whether a queued or processing job exists for the document.
// This is an advisory check only; there is no backing constraint.
func (r *JobRepository) HasActive(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM jobs
		     WHERE document_id = $1 AND status IN ($2, $3)
		 )`,
		documentID, domain.JobStatusQueued, domain.JobStatusProcessing,
	).Scan(&exists)
	return exists, err
}

// ClaimQueued atomically moves up to limit queued jobs to processing and
// returns them, oldest first. SKIP LOCKED keeps concurrent workers from
// claiming the same job.
func (r *JobRepository) ClaimQueued(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
		     SELECT id
		     FROM jobs
		     WHERE status = $1
		     ORDER BY created_at ASC
		     FOR UPDATE SKIP LOCKED
		     LIMIT $2
		 )
		 UPDATE jobs
		 SET status = $3,
		     updated_at = now()
		 FROM cte
		 WHERE jobs.id = cte.id
		 RETURNING `+qualifiedJobColumns("jobs"),
		domain.JobStatusQueued, limit, domain.JobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Advance updates chunk/batch counters, the step description and the running
// card total, recomputing the derived progress percentage. GREATEST keeps the
// percentage monotonic even if counters arrive out of order. Terminal jobs are
// never touched; a late advance reports ErrJobTerminal.
func (r *JobRepository) Advance(ctx context.Context, id string, completedChunks, currentBatch, totalBatches int, currentStep string, cardsDelta int) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET completed_chunks = $2,
		     current_batch = $3,
		     total_batches = $4,
		     current_step = $5,
		     total_cards = total_cards + $6,
		     progress_percentage = GREATEST(progress_percentage,
		         LEAST(100, ($2 * 100) / NULLIF(total_chunks, 0))),
		     status = $7,
		     updated_at = now()
		 WHERE id = $1 AND status NOT IN ($8, $9)`,
		id, completedChunks, currentBatch, totalBatches, currentStep, cardsDelta,
		domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

// MarkCompleted is idempotent: completing an already-completed job is a no-op,
// completing a failed job reports ErrJobTerminal.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $2,
		     progress_percentage = 100,
		     current_step = 'Processing complete',
		     completed_at = now(),
		     updated_at = now()
		 WHERE id = $1 AND status NOT IN ($2, $3)`,
		id, domain.JobStatusCompleted, domain.JobStatusFailed,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if job.Status == domain.JobStatusCompleted {
			return nil
		}
		return ErrJobTerminal
	}
	return nil
}

// MarkFailed records the error verbatim and preserves whatever progress was
// reached. Failing an already-failed job is a no-op.
func (r *JobRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $2,
		     error = $3,
		     current_step = 'Failed',
		     completed_at = now(),
		     updated_at = now()
		 WHERE id = $1 AND status NOT IN ($2, $4)`,
		id, domain.JobStatusFailed, errMsg, domain.JobStatusCompleted,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if job.Status == domain.JobStatusFailed {
			return nil
		}
		return ErrJobTerminal
	}
	return nil
}

func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// RequeueStale moves processing jobs whose heartbeat is older than the
// threshold back to queued with progress intact, and returns the affected ids.
// A worker that crashed mid-job left them in processing with nobody attached.
func (r *JobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE jobs
		 SET status = $1,
		     updated_at = now()
		 WHERE status = $2 AND updated_at < now() - $3::interval
		 RETURNING id`,
		domain.JobStatusQueued, domain.JobStatusProcessing, olderThan.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *JobRepository) missOrTerminal(ctx context.Context, id string) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var errMsg pgtype.Text
	var completedAt pgtype.Timestamptz
	err := row.Scan(
		&j.ID, &j.DocumentID, &j.Source, &j.Week, &j.Status, &j.TotalChunks, &j.CompletedChunks,
		&j.CurrentBatch, &j.TotalBatches, &j.CurrentStep, &j.TotalCards, &j.ProgressPercentage,
		&errMsg, &j.BatchSize, &j.PacingSeconds, &j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func qualifiedJobColumns(table string) string {
	return table + `.id, ` + table + `.document_id, ` + table + `.source, ` + table + `.week, ` +
		table + `.status, ` + table + `.total_chunks, ` + table + `.completed_chunks, ` +
		table + `.current_batch, ` + table + `.total_batches, ` + table + `.current_step, ` +
		table + `.total_cards, ` + table + `.progress_percentage, ` + table + `.error, ` +
		table + `.batch_size, ` + table + `.pacing_seconds, ` + table + `.created_at, ` +
		table + `.updated_at, ` + table + `.completed_at`
}
