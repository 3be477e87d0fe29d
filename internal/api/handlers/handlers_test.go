package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xuxing3/JiZhang/internal/config"
	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/jobs"
	"github.com/xuxing3/JiZhang/internal/jobs/inmemory"
	"github.com/xuxing3/JiZhang/internal/service"
	"github.com/xuxing3/JiZhang/internal/store"
)

// stubRepo is a minimal repository for handler tests.
type stubRepo struct {
	listResult *store.ListResult
	deleteErr  error
}

func (s *stubRepo) Insert(ctx context.Context, e *domain.Expense) (*domain.Expense, error) {
	e.ID = primitive.NewObjectID()
	return e, nil
}

func (s *stubRepo) Update(ctx context.Context, id primitive.ObjectID, chatID *int64, patch store.Patch) (*domain.Expense, error) {
	return nil, store.ErrNotFound
}

func (s *stubRepo) Delete(ctx context.Context, id primitive.ObjectID, chatID *int64) error {
	return s.deleteErr
}

func (s *stubRepo) List(ctx context.Context, f store.ListFilter) (*store.ListResult, error) {
	if s.listResult != nil {
		return s.listResult, nil
	}
	return &store.ListResult{}, nil
}

func (s *stubRepo) SummarizeByCategory(ctx context.Context, f store.SummaryFilter) ([]store.CategoryTotal, error) {
	return []store.CategoryTotal{
		{Category: "餐饮", Total: 40, Count: 2},
		{Category: "购物", Total: 45.5, Count: 1},
	}, nil
}

func (s *stubRepo) ListMonth(ctx context.Context, chatID *int64, ym string, limit int64) ([]domain.Expense, error) {
	return nil, nil
}

func newHandler(repo *stubRepo) *ExpensesHandler {
	cfg := &config.Config{DefaultTZ: "Asia/Shanghai"}
	svc := service.New(repo, nil, cfg, zerolog.Nop())
	return NewExpensesHandler(svc, zerolog.Nop())
}

func TestCreateExpense(t *testing.T) {
	h := newHandler(&stubRepo{})

	body := `{"amount": 32.5, "time": "2025-08-12 19:30", "payee": "肯德基", "category": "餐饮"}`
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var exp domain.Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
		t.Fatalf("response is not an expense: %v", err)
	}
	if exp.Amount != 32.5 || exp.YM != "2025-08" {
		t.Errorf("expense = %+v, want amount and ym stamped", exp)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"broken json", `{`},
		{"missing amount", `{"time": "2025-08-12 19:30"}`},
		{"missing time", `{"amount": 10}`},
		{"bad time", `{"amount": 10, "time": "someday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&stubRepo{})
			req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestParseExpense(t *testing.T) {
	h := newHandler(&stubRepo{})

	body := `{"text": "在超市买菜 45.5 18:30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/parse", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Parse(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Expense domain.Expense `json:"expense"`
		Draft   struct {
			Amount *float64 `json:"amount"`
		} `json:"draft"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response shape: %v", err)
	}
	if resp.Expense.Category != "购物" {
		t.Errorf("category = %q, want 购物", resp.Expense.Category)
	}
	if resp.Draft.Amount == nil {
		t.Error("the draft should be echoed back")
	}
}

func TestParseExpenseNoAmount(t *testing.T) {
	h := newHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/expenses/parse", strings.NewReader(`{"text": "在麦当劳吃饭"}`))
	rec := httptest.NewRecorder()

	h.Parse(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when no amount is found", rec.Code)
	}
}

func TestListExpensesBadBounds(t *testing.T) {
	h := newHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/expenses?start=someday", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unreadable bound", rec.Code)
	}
}

func TestListExpensesEmptyPageIsAnArray(t *testing.T) {
	h := newHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, empty pages must serialize as [] not null", rec.Body.String())
	}
}

func TestSummary(t *testing.T) {
	h := newHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/expenses/summary", nil)
	rec := httptest.NewRecorder()

	h.Summary(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Categories []store.CategoryTotal `json:"categories"`
		Total      float64               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response shape: %v", err)
	}
	if resp.Total != 85.5 {
		t.Errorf("grand total = %v, want 85.5", resp.Total)
	}
	if len(resp.Categories) != 2 {
		t.Errorf("categories = %v, want both groups", resp.Categories)
	}
}

func TestUpdateNotFound(t *testing.T) {
	h := newHandler(&stubRepo{})

	id := primitive.NewObjectID().Hex()
	req := httptest.NewRequest(http.MethodPatch, "/api/expenses/"+id, strings.NewReader(`{"category": "餐饮"}`))
	rec := httptest.NewRecorder()

	h.Update(rec, req, id)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteInvalidID(t *testing.T) {
	h := newHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodDelete, "/api/expenses/nope", nil)
	rec := httptest.NewRecorder()

	h.Delete(rec, req, "nope")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a malformed id", rec.Code)
	}
}

func TestReportsFlow(t *testing.T) {
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, jobStore)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx, func(ctx context.Context, job *jobs.ReportJob) ([]byte, error) {
		return []byte("xlsx-bytes"), nil
	}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	h := NewReportsHandler(queue, jobStore, zerolog.Nop())

	// Bad month is rejected before anything is queued.
	rec := httptest.NewRecorder()
	h.Enqueue(rec, httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(`{"ym": "august"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed ym", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Enqueue(rec, httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(`{"ym": "2025-08"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil || accepted.JobID == "" {
		t.Fatalf("enqueue response lacks a job id: %s", rec.Body.String())
	}

	// Wait for the worker, then download.
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := jobStore.GetJob(ctx, accepted.JobID)
		if err == nil && job.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("report job never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+accepted.JobID+"/download", nil), accepted.JobID)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "xlsx-bytes" {
		t.Errorf("download body = %q, want the stored workbook", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "2025-08") {
		t.Errorf("Content-Disposition = %q, want the month in the filename", got)
	}

	rec = httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/reports/missing", nil), "missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown job", rec.Code)
	}
}
