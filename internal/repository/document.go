package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/pagination"
)

var ErrDocumentNotFound = errors.New("document not found")
var ErrDocumentExists = errors.New("document already exists")

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, name, path, storage_key, page_count, byte_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.Name, nullableString(d.Path), nullableString(d.StorageKey), d.PageCount, d.ByteSize, d.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDocumentExists
		}
		return err
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, name, path, storage_key, page_count, byte_size, created_at
		 FROM documents WHERE id = $1`,
		id,
	))
}

func (r *DocumentRepository) GetByName(ctx context.Context, name string) (*domain.Document, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, name, path, storage_key, page_count, byte_size, created_at
		 FROM documents WHERE name = $1`,
		name,
	))
}

// ListWithCursor pages documents newest first. The extra row past the limit
// signals another page; its presence sets hasMore and the returned cursor
// points at the last item actually returned.
func (r *DocumentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.Document, string, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, path, storage_key, page_count, byte_size, created_at
			 FROM documents
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, path, storage_key, page_count, byte_size, created_at
			 FROM documents
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, "", false, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var path, storageKey pgtype.Text
		if err := rows.Scan(&d.ID, &d.Name, &path, &storageKey, &d.PageCount, &d.ByteSize, &d.CreatedAt); err != nil {
			return nil, "", false, err
		}
		if path.Valid {
			d.Path = path.String
		}
		if storageKey.Valid {
			d.StorageKey = storageKey.String
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	var nextCursor string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return docs, nextCursor, hasMore, nil
}

func (r *DocumentRepository) scanOne(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var path, storageKey pgtype.Text
	err := row.Scan(&d.ID, &d.Name, &path, &storageKey, &d.PageCount, &d.ByteSize, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if path.Valid {
		d.Path = path.String
	}
	if storageKey.Valid {
		d.StorageKey = storageKey.String
	}
	return &d, nil
}
