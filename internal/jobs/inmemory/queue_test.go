package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuxing3/JiZhang/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ReportJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.ReportJob) ([]byte, error) {
		return []byte("workbook:" + job.YM), nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.ReportJob{YM: "2025-08"}
	if err := q.PublishReport(ctx, job); err != nil {
		t.Fatalf("PublishReport() error: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("PublishReport should assign a job ID")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("completed job should carry started/completed timestamps")
	}

	data, err := store.GetResult(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetResult() error: %v", err)
	}
	if string(data) != "workbook:2025-08" {
		t.Errorf("result = %q, want the handler output", data)
	}
}

func TestQueueRecordsFailure(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job *jobs.ReportJob) ([]byte, error) {
		return nil, errors.New("no records")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.ReportJob{YM: "2025-08"}
	if err := q.PublishReport(ctx, job); err != nil {
		t.Fatalf("PublishReport() error: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "no records" {
		t.Errorf("job error = %q, want the handler error", failed.Error)
	}
	if _, err := store.GetResult(context.Background(), job.JobID); err == nil {
		t.Error("a failed job must not have a stored result")
	}
}

func TestQueueRejectsPublishAfterClose(t *testing.T) {
	q := NewQueue(1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := q.PublishReport(context.Background(), &jobs.ReportJob{YM: "2025-08"}); err == nil {
		t.Error("PublishReport should fail on a closed queue")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.ReportJob{JobID: "j1", YM: "2025-08", Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error: %v", err)
	}

	// Mutating the caller's struct must not leak into the store.
	job.Status = jobs.JobStatusFailed
	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored status = %s, want pending", got.Status)
	}

	if _, err := store.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob should fail for an unknown job")
	}
}
