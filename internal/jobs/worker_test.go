package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessJobs(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestWorker_PollsUntilStopped(t *testing.T) {
	processor := &countingProcessor{}
	worker := NewWorker("pipeline", processor, 10*time.Millisecond)

	go worker.Start(context.Background())

	assert.Eventually(t, func() bool {
		return processor.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	worker.Stop()
	after := processor.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, processor.calls.Load())
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	processor := &countingProcessor{}
	worker := NewWorker("pipeline", processor, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_KeepsPollingAfterProcessorError(t *testing.T) {
	processor := &countingProcessor{err: errors.New("transient")}
	worker := NewWorker("pipeline", processor, 10*time.Millisecond)

	go worker.Start(context.Background())
	defer worker.Stop()

	assert.Eventually(t, func() bool {
		return processor.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

// MockStaleJobRepository is a mock implementation of StaleJobRepository
type MockStaleJobRepository struct {
	mock.Mock
}

func (m *MockStaleJobRepository) RequeueStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func TestSweeper_RequeuesStaleJobs(t *testing.T) {
	repo := new(MockStaleJobRepository)
	sweeper := NewSweeper(repo, 10*time.Minute)

	repo.On("RequeueStale", mock.Anything, 10*time.Minute).Return([]string{"job-1", "job-2"}, nil)

	require.NoError(t, sweeper.ProcessJobs(context.Background()))
	repo.AssertExpectations(t)
}

func TestSweeper_PropagatesRepositoryError(t *testing.T) {
	repo := new(MockStaleJobRepository)
	sweeper := NewSweeper(repo, 10*time.Minute)

	repo.On("RequeueStale", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	assert.Error(t, sweeper.ProcessJobs(context.Background()))
}
