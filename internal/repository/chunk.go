package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revisehq/cardsmith/internal/domain"
)

var ErrChunkNotFound = errors.New("chunk not found")

type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) Create(ctx context.Context, c *domain.Chunk) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunks (id, document_id, seq, start_page, end_page, overlap_enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.DocumentID, c.Seq, c.StartPage, c.EndPage, c.OverlapEnabled, c.CreatedAt,
	)
	return err
}

// ReplaceForDocument deletes any previous chunk plan for the document and
// inserts the new one. A re-run with different chunking parameters replaces
// the plan rather than accumulating rows.
func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, documentID string, chunks []*domain.Chunk) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := r.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, seq, start_page, end_page, overlap_enabled, created_at
		 FROM chunks
		 WHERE document_id = $1
		 ORDER BY seq ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Seq, &c.StartPage, &c.EndPage, &c.OverlapEnabled, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
