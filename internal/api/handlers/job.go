package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/revisehq/cardsmith/internal/api"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/progress"
	"github.com/revisehq/cardsmith/internal/service"
)

type JobService interface {
	Start(ctx context.Context, input service.StartJobInput) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Job, error)
	Topics(ctx context.Context, jobID string) ([]*domain.ProcessedTopic, error)
}

// EventStream is the subscription side of the progress bus.
type EventStream interface {
	Subscribe(jobID string) (<-chan progress.Event, func())
}

type JobHandler struct {
	svc    JobService
	stream EventStream
	now    func() time.Time
}

func NewJobHandler(svc JobService, stream EventStream) *JobHandler {
	return &JobHandler{svc: svc, stream: stream, now: time.Now}
}

type StartJobRequest struct {
	DocumentID    string `json:"document_id"`
	Source        string `json:"source"`
	Week          string `json:"week"`
	MaxPages      int    `json:"max_pages,omitempty"`
	Overlap       *bool  `json:"overlap,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	PacingSeconds int    `json:"pacing_seconds,omitempty"`
}

type JobResponse struct {
	ID                 string `json:"id"`
	DocumentID         string `json:"document_id"`
	Source             string `json:"source,omitempty"`
	Week               string `json:"week,omitempty"`
	Status             string `json:"status"`
	TotalChunks        int    `json:"total_chunks"`
	CompletedChunks    int    `json:"completed_chunks"`
	CurrentBatch       int    `json:"current_batch"`
	TotalBatches       int    `json:"total_batches"`
	CurrentStep        string `json:"current_step"`
	TotalCards         int    `json:"total_cards"`
	ProgressPercentage int    `json:"progress_percentage"`
	Error              string `json:"error,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
	CompletedAt        string `json:"completed_at,omitempty"`

	DurationSeconds               int  `json:"duration_seconds"`
	EstimatedTimeRemainingSeconds *int `json:"estimated_time_remaining_seconds,omitempty"`
}

func (h *JobHandler) jobToResponse(j *domain.Job) *JobResponse {
	resp := &JobResponse{
		ID:                 j.ID,
		DocumentID:         j.DocumentID,
		Source:             j.Source,
		Week:               j.Week,
		Status:             string(j.Status),
		TotalChunks:        j.TotalChunks,
		CompletedChunks:    j.CompletedChunks,
		CurrentBatch:       j.CurrentBatch,
		TotalBatches:       j.TotalBatches,
		CurrentStep:        j.CurrentStep,
		TotalCards:         j.TotalCards,
		ProgressPercentage: j.ProgressPercentage,
		Error:              j.Error,
		CreatedAt:          j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}

	end := h.now().UTC()
	if j.Status.IsTerminal() && j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	duration := int(end.Sub(j.CreatedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	resp.DurationSeconds = duration

	// A remaining-time estimate only makes sense mid-flight with some progress
	// to extrapolate from.
	if j.Status == domain.JobStatusProcessing && j.ProgressPercentage > 0 && j.ProgressPercentage < 100 {
		remaining := duration * (100 - j.ProgressPercentage) / j.ProgressPercentage
		resp.EstimatedTimeRemainingSeconds = &remaining
	}
	return resp
}

func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DocumentID == "" {
		api.Error(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if req.MaxPages < 0 {
		api.Error(w, http.StatusBadRequest, "max_pages cannot be negative")
		return
	}

	overlap := true
	if req.Overlap != nil {
		overlap = *req.Overlap
	}

	job, err := h.svc.Start(r.Context(), service.StartJobInput{
		DocumentID:    req.DocumentID,
		Source:        req.Source,
		Week:          req.Week,
		MaxPages:      req.MaxPages,
		Overlap:       overlap,
		BatchSize:     req.BatchSize,
		PacingSeconds: req.PacingSeconds,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, h.jobToResponse(job))
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, h.jobToResponse(job))
}

type JobListResponse struct {
	Items []*JobResponse `json:"items"`
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	jobs, err := h.svc.ListRecent(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*JobResponse, len(jobs))
	for i, j := range jobs {
		responses[i] = h.jobToResponse(j)
	}

	api.Success(w, http.StatusOK, JobListResponse{Items: responses})
}

type TopicResponse struct {
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
	ChunkSeq    int    `json:"chunk_seq"`
	CardCount   int    `json:"card_count"`
	CreatedAt   string `json:"created_at"`
}

type TopicListResponse struct {
	Items []*TopicResponse `json:"items"`
}

func (h *JobHandler) Topics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	topics, err := h.svc.Topics(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*TopicResponse, len(topics))
	for i, t := range topics {
		responses[i] = &TopicResponse{
			Title:       t.Title,
			Fingerprint: t.Fingerprint,
			ChunkSeq:    t.ChunkSeq,
			CardCount:   t.CardCount,
			CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	api.Success(w, http.StatusOK, TopicListResponse{Items: responses})
}

// Logs streams the job's progress events as server-sent events. The stream
// carries only events published after the client attached and ends when the
// job reaches a terminal state.
func (h *JobHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// A job that finished before the client attached has nothing left to
	// stream; emit its final state and end.
	if job.Status.IsTerminal() {
		writeSSEEvent(w, progress.Event{
			JobID:     job.ID,
			Level:     terminalLevel(job.Status),
			Message:   terminalMessage(job),
			Timestamp: job.UpdatedAt,
		})
		flusher.Flush()
		return
	}

	events, cancel := h.stream.Subscribe(id)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev progress.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func terminalLevel(status domain.JobStatus) progress.Level {
	if status == domain.JobStatusFailed {
		return progress.LevelError
	}
	return progress.LevelSuccess
}

func terminalMessage(j *domain.Job) string {
	if j.Status == domain.JobStatusFailed {
		return fmt.Sprintf("Job failed: %s", j.Error)
	}
	return fmt.Sprintf("Job completed: %d cards imported", j.TotalCards)
}
