package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// StaleJobRepository requeues processing jobs whose heartbeat went silent
type StaleJobRepository interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// Sweeper reconciles jobs orphaned by a crashed or restarted worker. A job
// stuck in processing with a stale heartbeat goes back to queued with its
// progress intact; the next claim resumes it from completed_chunks.
type Sweeper struct {
	repo      StaleJobRepository
	threshold time.Duration
}

func NewSweeper(repo StaleJobRepository, threshold time.Duration) *Sweeper {
	return &Sweeper{repo: repo, threshold: threshold}
}

// ProcessJobs implements the JobProcessor interface
func (s *Sweeper) ProcessJobs(ctx context.Context) error {
	ids, err := s.repo.RequeueStale(ctx, s.threshold)
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	for _, id := range ids {
		log.Printf("requeued stale job %s", id)
	}
	return nil
}
