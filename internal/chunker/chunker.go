package chunker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/repository"
)

const (
	// DefaultMaxPages is the default maximum page count per chunk.
	DefaultMaxPages = 10

	// minChunkPages is the smallest acceptable final chunk. A plan whose last
	// chunk would fall below this merges it into the previous one instead;
	// a 2-page tail is not worth a separate generation pass.
	minChunkPages = 4
)

// Span is a half-open page range [Start, End).
type Span struct {
	Start int
	End   int
}

// Plan computes the chunk spans for a document of pageCount pages.
//
// With overlap enabled, every chunk after the first starts on the last page of
// the previous chunk, so a topic that straddles exactly one page boundary
// appears whole in at least one chunk. The final chunk is clamped to the page
// count and absorbs a too-small tail.
func Plan(pageCount, maxPages int, overlap bool) ([]Span, error) {
	if pageCount <= 0 {
		return nil, domain.ErrEmptyDocument
	}
	if maxPages <= 0 {
		return nil, domain.ErrInvalidChunkSize
	}

	if pageCount <= maxPages {
		return []Span{{Start: 0, End: pageCount}}, nil
	}

	// A one-page chunk cannot both overlap and advance; fall back to
	// disjoint chunking.
	if maxPages == 1 {
		overlap = false
	}

	var initial int
	if overlap {
		// Each chunk after the first advances by maxPages-1.
		initial = 1 + (pageCount-maxPages-1)/(maxPages-1) + 1
	} else {
		initial = (pageCount + maxPages - 1) / maxPages
	}

	var tail int
	if overlap {
		tail = pageCount - (initial-1)*(maxPages-1)
	} else {
		tail = pageCount % maxPages
		if tail == 0 {
			tail = maxPages
		}
	}

	total := initial
	extendLast := false
	if initial > 1 && tail < minChunkPages {
		total = initial - 1
		extendLast = true
	}

	spans := make([]Span, 0, total)
	prevEnd := 0
	for i := 0; i < total; i++ {
		var start int
		if overlap && i > 0 {
			start = prevEnd - 1
		} else {
			start = i * maxPages
		}

		end := start + maxPages
		if i == total-1 && extendLast {
			end = pageCount
		}
		if end > pageCount {
			end = pageCount
		}
		prevEnd = end

		spans = append(spans, Span{Start: start, End: end})
	}
	return spans, nil
}

// Service plans chunk spans and persists them as Chunk records.
type Service struct {
	chunks *repository.ChunkRepository
}

func NewService(chunks *repository.ChunkRepository) *Service {
	return &Service{chunks: chunks}
}

// PlanDocument computes the chunk plan for the document and replaces any
// previously persisted plan. Chunks are immutable once a job starts; a re-plan
// happens only at job-creation time.
func (s *Service) PlanDocument(ctx context.Context, doc *domain.Document, maxPages int, overlap bool) ([]*domain.Chunk, error) {
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}

	spans, err := Plan(doc.PageCount, maxPages, overlap)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	chunks := make([]*domain.Chunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, &domain.Chunk{
			ID:             uuid.NewString(),
			DocumentID:     doc.ID,
			Seq:            i,
			StartPage:      span.Start,
			EndPage:        span.End,
			OverlapEnabled: overlap,
			CreatedAt:      now,
		})
	}

	if err := s.chunks.ReplaceForDocument(ctx, doc.ID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}
