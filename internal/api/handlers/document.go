package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/revisehq/cardsmith/internal/api"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/service"
)

type DocumentService interface {
	Register(ctx context.Context, input service.RegisterDocumentInput) (*domain.Document, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListDocumentsInput) (*service.DocumentPage, error)
	ChunkPlan(ctx context.Context, documentID string) ([]*domain.Chunk, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type RegisterDocumentRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type DocumentResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Path       string           `json:"path,omitempty"`
	StorageKey string           `json:"storage_key,omitempty"`
	PageCount  int              `json:"page_count"`
	ByteSize   int64            `json:"byte_size"`
	CreatedAt  string           `json:"created_at"`
	Chunks     []*ChunkResponse `json:"chunks,omitempty"`
}

type ChunkResponse struct {
	Seq            int  `json:"seq"`
	StartPage      int  `json:"start_page"`
	EndPage        int  `json:"end_page"`
	OverlapEnabled bool `json:"overlap_enabled"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:         d.ID,
		Name:       d.Name,
		Path:       d.Path,
		StorageKey: d.StorageKey,
		PageCount:  d.PageCount,
		ByteSize:   d.ByteSize,
		CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DocumentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	doc, err := h.svc.Register(r.Context(), service.RegisterDocumentInput{
		Name: req.Name,
		Path: req.Path,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := documentToResponse(doc)
	chunks, err := h.svc.ChunkPlan(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, &ChunkResponse{
			Seq:            c.Seq,
			StartPage:      c.StartPage,
			EndPage:        c.EndPage,
			OverlapEnabled: c.OverlapEnabled,
		})
	}

	api.Success(w, http.StatusOK, resp)
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.svc.List(r.Context(), service.ListDocumentsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}
