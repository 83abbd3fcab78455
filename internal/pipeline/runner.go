package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/genai"
	"github.com/revisehq/cardsmith/internal/progress"
	"github.com/revisehq/cardsmith/internal/telemetry"
	"github.com/revisehq/cardsmith/internal/topics"
)

// DocumentRepositoryInterface defines the repository interface for document lookup
type DocumentRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ChunkRepositoryInterface defines the repository interface for chunk plans
type ChunkRepositoryInterface interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
}

// TrackerInterface defines the job tracker operations the runner drives
type TrackerInterface interface {
	Advance(ctx context.Context, jobID string, completedChunks, currentBatch, totalBatches int, currentStep string, cardsDelta int) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}

// LedgerInterface defines the dedup decisions the runner consults
type LedgerInterface interface {
	Accept(ctx context.Context, documentID string, chunkSeq int, t domain.Topic) (bool, error)
	RecordCards(ctx context.Context, documentID, fingerprint string, count int) error
}

// SinkInterface delivers generated cards to the flashcard store
type SinkInterface interface {
	ImportCards(ctx context.Context, cards []domain.Card) (imported int, failed int, err error)
}

// ExtractorInterface produces text for a page range of a document on disk
type ExtractorInterface interface {
	ExtractRange(path string, startPage, endPage int) (string, error)
}

// DocumentStore fetches remotely stored documents to a local file. Optional;
// a nil store restricts the runner to documents with a local path.
type DocumentStore interface {
	FetchToFile(ctx context.Context, key string) (path string, cleanup func(), err error)
}

// Runner executes one job's chunk/batch loop end to end. Chunks run strictly
// in sequence order because later chunks' dedup decisions depend on earlier
// chunks having registered their topics.
type Runner struct {
	docs      DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	tracker   TrackerInterface
	ledger    LedgerInterface
	generator genai.Generator
	sink      SinkInterface
	extractor ExtractorInterface
	store     DocumentStore
	bus       *progress.Bus

	// pace is swapped out in tests; production uses a context-aware sleep.
	pace func(ctx context.Context, d time.Duration) error
}

func NewRunner(
	docs DocumentRepositoryInterface,
	chunks ChunkRepositoryInterface,
	tracker TrackerInterface,
	ledger LedgerInterface,
	generator genai.Generator,
	sink SinkInterface,
	extractor ExtractorInterface,
	store DocumentStore,
	bus *progress.Bus,
) *Runner {
	return &Runner{
		docs:      docs,
		chunks:    chunks,
		tracker:   tracker,
		ledger:    ledger,
		generator: generator,
		sink:      sink,
		extractor: extractor,
		store:     store,
		bus:       bus,
		pace:      ctxSleep,
	}
}

// Run drives the job to a terminal state. Any collaborator error fails the
// job with the original message preserved; partial progress stays recorded.
// The event stream for the job is closed on return.
func (r *Runner) Run(ctx context.Context, job *domain.Job) {
	logger := progress.NewLogger(r.bus, job.ID)
	defer r.bus.Close(job.ID)

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run", telemetry.SpanAttributes{
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		Operation:  "process_document",
	})
	defer span.End()

	if err := r.run(ctx, job, logger); err != nil {
		span.SetError(err)
		logger.Error("job failed: %v", err)
		if ferr := r.tracker.MarkFailed(ctx, job.ID, err.Error()); ferr != nil {
			logger.Error("could not record failure: %v", ferr)
		}
		return
	}

	if err := r.tracker.MarkCompleted(ctx, job.ID); err != nil {
		logger.Error("could not record completion: %v", err)
		return
	}
	logger.Success("processing complete: %d/%d chunks", job.TotalChunks, job.TotalChunks)
}

func (r *Runner) run(ctx context.Context, job *domain.Job, logger *progress.Logger) error {
	doc, err := r.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		return err
	}

	path, cleanup, err := r.localPath(ctx, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := r.chunks.ListByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(plan) != job.TotalChunks {
		return fmt.Errorf("chunk plan has %d chunks, job expects %d", len(plan), job.TotalChunks)
	}

	// A requeued job resumes where it stopped; the ledger makes the overlap
	// page of the boundary chunk idempotent.
	start := job.CompletedChunks
	if start > 0 {
		logger.Info("resuming from chunk %d/%d", start+1, len(plan))
	}

	sid := job.TotalCards + 1
	for _, chunk := range plan[start:] {
		cards, err := r.processChunk(ctx, job, doc, chunk, path, &sid, logger)
		if err != nil {
			return err
		}

		step := fmt.Sprintf("Completed chunk %d/%d (pages %d-%d)", chunk.Seq+1, len(plan), chunk.StartPage+1, chunk.EndPage)
		if err := r.tracker.Advance(ctx, job.ID, chunk.Seq+1, 0, 0, step, 0); err != nil {
			return err
		}
		logger.Success("chunk %d/%d done, %d new cards", chunk.Seq+1, len(plan), cards)
	}
	return nil
}

func (r *Runner) processChunk(ctx context.Context, job *domain.Job, doc *domain.Document, chunk *domain.Chunk, path string, sid *int, logger *progress.Logger) (int, error) {
	logger.Info("extracting pages %d-%d", chunk.StartPage+1, chunk.EndPage)
	text, err := r.extractor.ExtractRange(path, chunk.StartPage, chunk.EndPage)
	if err != nil {
		return 0, err
	}

	extracted := topics.Extract(text)
	if len(extracted) == 0 {
		logger.Warning("no topics found in pages %d-%d", chunk.StartPage+1, chunk.EndPage)
		return 0, nil
	}

	batchSize := job.BatchSize
	if batchSize <= 0 {
		batchSize = topics.DefaultBatchSize
	}
	batches := topics.Batch(extracted, batchSize)
	logger.Info("chunk %d: %d topics in %d batches", chunk.Seq+1, len(extracted), len(batches))

	chunkCards := 0
	for bi, batch := range batches {
		if bi > 0 {
			if err := r.pace(ctx, time.Duration(job.PacingSeconds)*time.Second); err != nil {
				return chunkCards, err
			}
		}

		step := fmt.Sprintf("Chunk %d/%d, batch %d/%d", chunk.Seq+1, job.TotalChunks, bi+1, len(batches))
		if err := r.tracker.Advance(ctx, job.ID, chunk.Seq, bi+1, len(batches), step, 0); err != nil {
			return chunkCards, err
		}

		n, err := r.processBatch(ctx, job, doc, chunk, batch, sid, logger)
		if err != nil {
			return chunkCards, err
		}
		chunkCards += n
	}
	return chunkCards, nil
}

func (r *Runner) processBatch(ctx context.Context, job *domain.Job, doc *domain.Document, chunk *domain.Chunk, batch []domain.Topic, sid *int, logger *progress.Logger) (int, error) {
	// Dedup filter first: rejected topics never reach the generation service.
	accepted := make([]domain.Topic, 0, len(batch))
	for _, t := range batch {
		ok, err := r.ledger.Accept(ctx, doc.ID, chunk.Seq, t)
		if err != nil {
			return 0, err
		}
		if !ok {
			logger.Info("skipping duplicate topic: %s", t.Title)
			continue
		}
		accepted = append(accepted, t)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	logger.Info("generating cards for %d topics", len(accepted))
	result, err := r.generator.GenerateBatch(ctx, genai.BatchRequest{
		Source:   job.Source,
		Week:     job.Week,
		Topics:   accepted,
		StartSID: *sid,
	})
	if err != nil {
		return 0, err
	}
	for _, w := range result.Warnings {
		logger.Warning("%s", w)
	}
	*sid += len(result.Cards)

	imported, failedCount, err := r.sink.ImportCards(ctx, result.Cards)
	if err != nil {
		return 0, err
	}
	if failedCount > 0 {
		logger.Warning("%d cards failed to import", failedCount)
	}

	// Acceptance already happened; the count is bookkeeping per topic batch.
	perTopic := len(result.Cards) / len(accepted)
	for _, t := range accepted {
		fp := t.Fingerprint
		if fp == "" {
			fp = topics.Fingerprint(t.Content)
		}
		if err := r.ledger.RecordCards(ctx, doc.ID, fp, perTopic); err != nil {
			logger.Warning("could not record card count for %s: %v", t.Title, err)
		}
	}

	if err := r.tracker.Advance(ctx, job.ID, chunk.Seq, 0, 0, fmt.Sprintf("Imported %d cards", imported), len(result.Cards)); err != nil {
		return len(result.Cards), err
	}
	return len(result.Cards), nil
}

func (r *Runner) localPath(ctx context.Context, doc *domain.Document) (string, func(), error) {
	if doc.Path != "" {
		return doc.Path, func() {}, nil
	}
	if doc.StorageKey != "" && r.store != nil {
		return r.store.FetchToFile(ctx, doc.StorageKey)
	}
	return "", nil, fmt.Errorf("%w: document %s has no local path or storage key", domain.ErrDocumentUnreadable, doc.ID)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
