// Package jobs defines the asynchronous report-generation jobs and the
// queue/store abstractions behind them.
package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ReportJob asks for one month's XLSX summary workbook.
type ReportJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// YM names the month partition to summarize ("YYYY-MM").
	YM string `json:"ym"`

	// ChatID scopes the report to one identity; nil means all.
	ChatID *int64 `json:"chat_id,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds failure details once Status is failed.
	Error string `json:"error,omitempty"`
}

// Publisher enqueues report jobs.
type Publisher interface {
	PublishReport(ctx context.Context, job *ReportJob) error
	Close() error
}

// Consumer drains the queue, handing each job to a handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// Handler builds the workbook for one job and returns its bytes.
type Handler func(ctx context.Context, job *ReportJob) ([]byte, error)

// JobStore tracks job state and completed results.
type JobStore interface {
	SaveJob(ctx context.Context, job *ReportJob) error
	GetJob(ctx context.Context, jobID string) (*ReportJob, error)

	// SaveResult stores the finished workbook for a job.
	SaveResult(ctx context.Context, jobID string, data []byte) error
	// GetResult returns the workbook bytes, or an error if the job has
	// not completed.
	GetResult(ctx context.Context, jobID string) ([]byte, error)
}
