package service

import (
	"context"

	"github.com/revisehq/cardsmith/internal/chunker"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/tracker"
)

type DocumentGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ChunkPlanner computes and persists the chunk plan for a document.
type ChunkPlanner interface {
	PlanDocument(ctx context.Context, doc *domain.Document, maxPages int, overlap bool) ([]*domain.Chunk, error)
}

// JobTracker owns job lifecycle transitions and reads.
type JobTracker interface {
	Create(ctx context.Context, doc *domain.Document, totalChunks int, opts tracker.Options) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Job, error)
}

// TopicLedger reads the dedup ledger for a document.
type TopicLedger interface {
	Topics(ctx context.Context, documentID string) ([]*domain.ProcessedTopic, error)
}

type JobService struct {
	documents DocumentGetter
	planner   ChunkPlanner
	tracker   JobTracker
	ledger    TopicLedger
}

func NewJobService(documents DocumentGetter, planner ChunkPlanner, jobTracker JobTracker, ledger TopicLedger) *JobService {
	return &JobService{
		documents: documents,
		planner:   planner,
		tracker:   jobTracker,
		ledger:    ledger,
	}
}

type StartJobInput struct {
	DocumentID    string
	Source        string
	Week          string
	MaxPages      int
	Overlap       bool
	BatchSize     int
	PacingSeconds int
}

const (
	DefaultBatchSize     = 3
	DefaultPacingSeconds = 5
)

// Start plans the document's chunks and enqueues a job over them. The plan is
// fixed at this point; workers claiming the job later replay it verbatim.
func (s *JobService) Start(ctx context.Context, input StartJobInput) (*domain.Job, error) {
	if input.DocumentID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	doc, err := s.documents.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}

	maxPages := input.MaxPages
	if maxPages == 0 {
		maxPages = chunker.DefaultMaxPages
	}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	// A negative pacing disables inter-batch sleeps entirely.
	pacing := input.PacingSeconds
	if pacing == 0 {
		pacing = DefaultPacingSeconds
	}
	if pacing < 0 {
		pacing = 0
	}

	chunks, err := s.planner.PlanDocument(ctx, doc, maxPages, input.Overlap)
	if err != nil {
		return nil, err
	}

	return s.tracker.Create(ctx, doc, len(chunks), tracker.Options{
		Source:        input.Source,
		Week:          input.Week,
		BatchSize:     batchSize,
		PacingSeconds: pacing,
	})
}

func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.tracker.Get(ctx, jobID)
}

func (s *JobService) ListRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.tracker.ListRecent(ctx, limit)
}

// Topics returns the dedup ledger entries recorded for the job's document.
func (s *JobService) Topics(ctx context.Context, jobID string) ([]*domain.ProcessedTopic, error) {
	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Topics(ctx, job.DocumentID)
}
