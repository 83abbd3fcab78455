package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revisehq/cardsmith/internal/domain"
)

// LedgerRepository persists accepted topic fingerprints. The UNIQUE
// (document_id, fingerprint) constraint is the source of truth for
// duplicate detection; acceptance is a single atomic insert.
type LedgerRepository struct {
	db dbtx
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: pool}
}

func NewLedgerRepositoryWithTx(tx pgx.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// Accept records the fingerprint and reports whether this call won. A false
// return means another topic with the same fingerprint was accepted earlier,
// possibly by a concurrent worker racing on the same insert.
func (r *LedgerRepository) Accept(ctx context.Context, t *domain.ProcessedTopic) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO processed_topics (id, document_id, chunk_seq, title, fingerprint, card_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (document_id, fingerprint) DO NOTHING`,
		t.ID, t.DocumentID, t.ChunkSeq, t.Title, t.Fingerprint, t.CardCount, t.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}

// SetCardCount records how many cards were generated for an accepted topic.
func (r *LedgerRepository) SetCardCount(ctx context.Context, documentID, fingerprint string, count int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE processed_topics SET card_count = $3
		 WHERE document_id = $1 AND fingerprint = $2`,
		documentID, fingerprint, count,
	)
	return err
}

func (r *LedgerRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.ProcessedTopic, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, chunk_seq, title, fingerprint, card_count, created_at
		 FROM processed_topics
		 WHERE document_id = $1
		 ORDER BY created_at ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []*domain.ProcessedTopic
	for rows.Next() {
		var t domain.ProcessedTopic
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.ChunkSeq, &t.Title, &t.Fingerprint, &t.CardCount, &t.CreatedAt); err != nil {
			return nil, err
		}
		topics = append(topics, &t)
	}
	return topics, rows.Err()
}

// CountByDocument returns the number of accepted topics for a document.
func (r *LedgerRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_topics WHERE document_id = $1`,
		documentID,
	).Scan(&n)
	return n, err
}
