package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/progress"
	"github.com/revisehq/cardsmith/internal/service"
)

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Start(ctx context.Context, input service.StartJobInput) (*domain.Job, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobService) ListRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

func (m *MockJobService) Topics(ctx context.Context, jobID string) ([]*domain.ProcessedTopic, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ProcessedTopic), args.Error(1)
}

// stubEventStream hands out a prepared event channel.
type stubEventStream struct {
	events chan progress.Event
}

func (s *stubEventStream) Subscribe(jobID string) (<-chan progress.Event, func()) {
	return s.events, func() {}
}

func newTestJob(status domain.JobStatus) *domain.Job {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:                 "job-123",
		DocumentID:         "doc-123",
		Source:             "CLAT 2026",
		Week:               "Week 3",
		Status:             status,
		TotalChunks:        5,
		CompletedChunks:    2,
		CurrentStep:        "Chunk 3/5, batch 1/4",
		TotalCards:         24,
		ProgressPercentage: 40,
		BatchSize:          3,
		PacingSeconds:      5,
		CreatedAt:          created,
		UpdatedAt:          created.Add(time.Minute),
	}
}

func TestJobHandler_Start_Success(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	queued := newTestJob(domain.JobStatusQueued)
	mockSvc.On("Start", mock.Anything, mock.MatchedBy(func(input service.StartJobInput) bool {
		return input.DocumentID == "doc-123" && input.Overlap && input.Week == "Week 3"
	})).Return(queued, nil)

	body := `{"document_id":"doc-123","source":"CLAT 2026","week":"Week 3"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Start(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "job-123", data["id"])
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_Start_OverlapOptOut(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("Start", mock.Anything, mock.MatchedBy(func(input service.StartJobInput) bool {
		return !input.Overlap
	})).Return(newTestJob(domain.JobStatusQueued), nil)

	body := `{"document_id":"doc-123","overlap":false}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Start(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_Start_MissingDocumentID(t *testing.T) {
	handler := NewJobHandler(new(MockJobService), progress.NewBus())

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	handler.Start(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_Start_DuplicateActiveJob(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("Start", mock.Anything, mock.Anything).Return(nil, domain.ErrDuplicateActiveJob)

	body := `{"document_id":"doc-123"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Start(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJobHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	job := newTestJob(domain.JobStatusProcessing)
	mockSvc.On("Get", mock.Anything, "job-123").Return(job, nil)

	// 100 seconds in at 40 percent leaves 150 seconds to go.
	handler.now = func() time.Time { return job.CreatedAt.Add(100 * time.Second) }

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, float64(40), data["progress_percentage"])
	assert.Equal(t, float64(100), data["duration_seconds"])
	assert.Equal(t, float64(150), data["estimated_time_remaining_seconds"])
}

func TestJobHandler_Get_TerminalJobUsesCompletedAt(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	job := newTestJob(domain.JobStatusCompleted)
	completedAt := job.CreatedAt.Add(5 * time.Minute)
	job.CompletedAt = &completedAt
	job.ProgressPercentage = 100
	mockSvc.On("Get", mock.Anything, "job-123").Return(job, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(300), data["duration_seconds"])
	assert.NotContains(t, data, "estimated_time_remaining_seconds")
	assert.Equal(t, "2026-08-01T10:05:00Z", data["completed_at"])
}

func TestJobHandler_Get_RendersTimestampsInUTC(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	// 15:30 IST is 10:00 UTC; the response must carry the UTC instant.
	ist := time.FixedZone("IST", 5*3600+1800)
	job := newTestJob(domain.JobStatusQueued)
	job.CreatedAt = time.Date(2026, 8, 1, 15, 30, 0, 0, ist)
	job.UpdatedAt = job.CreatedAt
	mockSvc.On("Get", mock.Anything, "job-123").Return(job, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "2026-08-01T10:00:00Z", data["created_at"])
	assert.Equal(t, "2026-08-01T10:00:00Z", data["updated_at"])
}

func TestJobHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrJobNotFound)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	req = requestWithURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobHandler_List(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("ListRecent", mock.Anything, 20).Return([]*domain.Job{
		newTestJob(domain.JobStatusProcessing),
		newTestJob(domain.JobStatusQueued),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Len(t, data["items"], 2)
}

func TestJobHandler_Topics(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("Topics", mock.Anything, "job-123").Return([]*domain.ProcessedTopic{
		{Title: "Fundamental Rights", Fingerprint: "aa11", ChunkSeq: 0, CardCount: 4, CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123/topics", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Topics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "Fundamental Rights", first["title"])
	assert.Equal(t, float64(4), first["card_count"])
}

func TestJobHandler_Logs_StreamsEvents(t *testing.T) {
	mockSvc := new(MockJobService)
	events := make(chan progress.Event, 4)
	events <- progress.Event{JobID: "job-123", Level: progress.LevelInfo, Message: "Processing chunk 1/5"}
	events <- progress.Event{JobID: "job-123", Level: progress.LevelSuccess, Message: "Completed chunk 1/5 (pages 1-10)"}
	close(events)
	handler := NewJobHandler(mockSvc, &stubEventStream{events: events})

	mockSvc.On("Get", mock.Anything, "job-123").Return(newTestJob(domain.JobStatusProcessing), nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123/logs", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Logs(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "))
	}

	var ev progress.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &ev))
	assert.Equal(t, "Processing chunk 1/5", ev.Message)
	assert.Equal(t, progress.LevelInfo, ev.Level)
}

func TestJobHandler_Logs_TerminalJobEmitsFinalEvent(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	job := newTestJob(domain.JobStatusFailed)
	job.Error = "flashcard generation failed"
	mockSvc.On("Get", mock.Anything, "job-123").Return(job, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-123/logs", nil)
	req = requestWithURLParam(req, "id", "job-123")
	w := httptest.NewRecorder()

	handler.Logs(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"level":"error"`)
	assert.Contains(t, body, "flashcard generation failed")
}

func TestJobHandler_Logs_JobNotFound(t *testing.T) {
	mockSvc := new(MockJobService)
	handler := NewJobHandler(mockSvc, progress.NewBus())

	mockSvc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrJobNotFound)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing/logs", nil)
	req = requestWithURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	handler.Logs(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
