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

func newProcessedTopic(documentID string, chunkSeq int, fingerprint string) *domain.ProcessedTopic {
	return &domain.ProcessedTopic{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		ChunkSeq:    chunkSeq,
		Title:       "Fundamental Rights",
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestLedgerRepository_Accept_FirstWins(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	ledgerRepo := NewLedgerRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)

	first := newProcessedTopic(doc.ID, 0, "abc123")
	accepted, err := ledgerRepo.Accept(ctx, first)
	require.NoError(t, err)
	assert.True(t, accepted)

	// Same fingerprint arriving from the overlapping chunk loses.
	dup := newProcessedTopic(doc.ID, 1, "abc123")
	accepted, err = ledgerRepo.Accept(ctx, dup)
	require.NoError(t, err)
	assert.False(t, accepted)

	topics, err := ledgerRepo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, first.ID, topics[0].ID)
	assert.Equal(t, 0, topics[0].ChunkSeq)
}

func TestLedgerRepository_Accept_ScopedPerDocument(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	ledgerRepo := NewLedgerRepository(pool)

	docA := setupDocumentForJob(ctx, t, docRepo)
	docB := setupDocumentForJob(ctx, t, docRepo)

	accepted, err := ledgerRepo.Accept(ctx, newProcessedTopic(docA.ID, 0, "abc123"))
	require.NoError(t, err)
	assert.True(t, accepted)

	// The same fingerprint in a different document is a fresh topic.
	accepted, err = ledgerRepo.Accept(ctx, newProcessedTopic(docB.ID, 0, "abc123"))
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestLedgerRepository_SetCardCount(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	ledgerRepo := NewLedgerRepository(pool)

	doc := setupDocumentForJob(ctx, t, docRepo)

	topic := newProcessedTopic(doc.ID, 0, "abc123")
	accepted, err := ledgerRepo.Accept(ctx, topic)
	require.NoError(t, err)
	require.True(t, accepted)

	require.NoError(t, ledgerRepo.SetCardCount(ctx, doc.ID, "abc123", 7))

	topics, err := ledgerRepo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 7, topics[0].CardCount)

	n, err := ledgerRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
