package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuxing3/JiZhang/internal/jobs"
)

// Store is an in-memory implementation of JobStore. It is safe for
// concurrent use; state is lost on restart, which is acceptable for
// report jobs since they are cheap to re-request.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.ReportJob
	results map[string][]byte
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*jobs.ReportJob),
		results: make(map[string][]byte),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ReportJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// SaveResult implements the JobStore interface.
func (s *Store) SaveResult(ctx context.Context, jobID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	s.results[jobID] = data
	return nil
}

// GetResult implements the JobStore interface.
func (s *Store) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.results[jobID]
	if !exists {
		return nil, fmt.Errorf("no result for job: %s", jobID)
	}
	return data, nil
}

var _ jobs.JobStore = (*Store)(nil)
