package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/topics"
)

// LedgerRepositoryInterface defines the repository interface for ledger persistence
type LedgerRepositoryInterface interface {
	Accept(ctx context.Context, t *domain.ProcessedTopic) (bool, error)
	SetCardCount(ctx context.Context, documentID, fingerprint string, count int) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.ProcessedTopic, error)
}

// Ledger answers "have I already processed this topic" for a document. The
// decision rides entirely on the repository's atomic insert, so two chunks
// racing on the same overlap topic cannot both win.
type Ledger struct {
	repo LedgerRepositoryInterface
}

func NewLedger(repo LedgerRepositoryInterface) *Ledger {
	return &Ledger{repo: repo}
}

// Accept returns true when the topic has not been processed before for this
// document. A false return means skip: some earlier chunk, or a concurrent
// one, already owns this fingerprint.
func (l *Ledger) Accept(ctx context.Context, documentID string, chunkSeq int, t domain.Topic) (bool, error) {
	fp := t.Fingerprint
	if fp == "" {
		fp = topics.Fingerprint(t.Content)
	}
	return l.repo.Accept(ctx, &domain.ProcessedTopic{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		ChunkSeq:    chunkSeq,
		Title:       t.Title,
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
	})
}

// RecordCards notes how many cards were generated for an accepted topic.
// Import failures do not undo acceptance; accepted means "will not
// regenerate", not "successfully delivered".
func (l *Ledger) RecordCards(ctx context.Context, documentID, fingerprint string, count int) error {
	return l.repo.SetCardCount(ctx, documentID, fingerprint, count)
}

// Topics lists every accepted topic for the document, oldest first.
func (l *Ledger) Topics(ctx context.Context, documentID string) ([]*domain.ProcessedTopic, error) {
	return l.repo.ListByDocument(ctx, documentID)
}
