package domain

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a processing job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can never change again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the persisted unit of orchestration covering one Document's end-to-end
// processing run. Progress is derived from chunk counters and is monotonically
// non-decreasing while the job is non-terminal; it reaches exactly 100 only
// through completion.
type Job struct {
	ID                 string
	DocumentID         string
	Source             string
	Week               string
	Status             JobStatus
	TotalChunks        int
	CompletedChunks    int
	CurrentBatch       int
	TotalBatches       int
	CurrentStep        string
	TotalCards         int
	ProgressPercentage int
	Error              string
	BatchSize          int
	PacingSeconds      int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// ProgressFor computes the derived progress percentage for a chunk counter.
func ProgressFor(completedChunks, totalChunks int) int {
	if totalChunks <= 0 {
		return 0
	}
	p := completedChunks * 100 / totalChunks
	if p > 100 {
		p = 100
	}
	return p
}

// ValidateJob validates a Job instance
func ValidateJob(j *Job) error {
	if j == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.DocumentID == "" {
		return fmt.Errorf("job DocumentID is required")
	}
	if !isValidJobStatus(j.Status) {
		return fmt.Errorf("job Status is invalid: %s", j.Status)
	}
	if j.TotalChunks <= 0 {
		return fmt.Errorf("job TotalChunks must be positive")
	}
	if j.CompletedChunks < 0 || j.CompletedChunks > j.TotalChunks {
		return fmt.Errorf("job CompletedChunks out of range")
	}
	return nil
}

// isValidJobStatus checks if a JobStatus is valid
func isValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
