package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/revisehq/cardsmith/internal/domain"
)

// JobClaimer atomically claims queued jobs for processing
type JobClaimer interface {
	ClaimQueued(ctx context.Context, limit int) ([]*domain.Job, error)
}

// JobRunner executes one claimed job to a terminal state
type JobRunner interface {
	Run(ctx context.Context, job *domain.Job)
}

// Processor claims queued jobs and hands each to a dedicated goroutine,
// bounded by a fixed concurrency limit. Claiming only as many jobs as there
// are free slots keeps unstarted work in the queue where the sweeper can see
// its heartbeat, instead of parked in memory.
type Processor struct {
	claimer JobClaimer
	runner  JobRunner
	sem     chan struct{}
	wg      sync.WaitGroup
}

func NewProcessor(claimer JobClaimer, runner JobRunner, maxConcurrent int) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Processor{
		claimer: claimer,
		runner:  runner,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// ProcessJobs implements the poll worker's JobProcessor interface.
func (p *Processor) ProcessJobs(ctx context.Context) error {
	free := cap(p.sem) - len(p.sem)
	if free == 0 {
		return nil
	}

	jobs, err := p.claimer.ClaimQueued(ctx, free)
	if err != nil {
		return fmt.Errorf("failed to claim queued jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	log.Printf("claimed %d queued jobs", len(jobs))
	for _, job := range jobs {
		p.sem <- struct{}{}
		p.wg.Add(1)
		go func(job *domain.Job) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.runner.Run(ctx, job)
		}(job)
	}
	return nil
}

// Wait blocks until every in-flight job finishes. Used during shutdown after
// the poll worker has stopped claiming.
func (p *Processor) Wait() {
	p.wg.Wait()
}
