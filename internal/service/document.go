package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/pagination"
	"github.com/revisehq/cardsmith/internal/repository"
)

type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*domain.Document, string, bool, error)
}

// ChunkLister reads the persisted chunk plan for a document.
type ChunkLister interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
}

// PageCounter probes a PDF for its page count at registration time.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// DocumentUploader copies a registered file into object storage. Optional;
// a nil uploader keeps documents on the local filesystem.
type DocumentUploader interface {
	PutFile(ctx context.Context, key, path string) error
}

type DocumentService struct {
	repo     DocumentRepositoryInterface
	chunks   ChunkLister
	pages    PageCounter
	uploader DocumentUploader
	uuidGen  UUIDGenerator
}

func NewDocumentService(repo DocumentRepositoryInterface, chunks ChunkLister, pages PageCounter) *DocumentService {
	return &DocumentService{
		repo:    repo,
		chunks:  chunks,
		pages:   pages,
		uuidGen: &DefaultUUIDGenerator{},
	}
}

func NewDocumentServiceWithUploader(repo DocumentRepositoryInterface, chunks ChunkLister, pages PageCounter, uploader DocumentUploader) *DocumentService {
	return &DocumentService{
		repo:     repo,
		chunks:   chunks,
		pages:    pages,
		uploader: uploader,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

type RegisterDocumentInput struct {
	Name string
	Path string
}

// Register probes the file and records it as an immutable document. When an
// uploader is configured the file is also copied to object storage so workers
// on other hosts can fetch it.
func (s *DocumentService) Register(ctx context.Context, input RegisterDocumentInput) (*domain.Document, error) {
	if input.Name == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if input.Path == "" {
		return nil, domain.ErrMissingRequiredField
	}

	info, err := os.Stat(input.Path)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeCollaborator, "document could not be read", err)
	}

	pageCount, err := s.pages.PageCount(input.Path)
	if err != nil {
		return nil, err
	}
	if pageCount <= 0 {
		return nil, domain.ErrEmptyDocument
	}

	id := s.uuidGen.NewString()
	doc := &domain.Document{
		ID:        id,
		Name:      input.Name,
		Path:      input.Path,
		PageCount: pageCount,
		ByteSize:  info.Size(),
		CreatedAt: time.Now().UTC(),
	}

	if s.uploader != nil {
		key := buildDocumentKey(id, input.Name)
		if err := s.uploader.PutFile(ctx, key, input.Path); err != nil {
			return nil, fmt.Errorf("failed to upload document: %w", err)
		}
		doc.StorageKey = key
	}

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDocumentExists) {
			return nil, domain.ErrDocumentAlreadyExists
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	return doc, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

type DocumentPage struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*DocumentPage, error) {
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	items, nextCursor, hasMore, err := s.repo.ListWithCursor(ctx, cursor, input.Limit)
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// ChunkPlan returns the persisted chunk plan for a document, oldest plan
// order first. An empty plan just means no job has been started yet.
func (s *DocumentService) ChunkPlan(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	if _, err := s.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, documentID)
}

func buildDocumentKey(documentID, name string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, name)
}
