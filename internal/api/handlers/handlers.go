package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xuxing3/JiZhang/internal/api/middleware"
	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/jobs"
	"github.com/xuxing3/JiZhang/internal/service"
	"github.com/xuxing3/JiZhang/internal/store"
)

// ExpensesHandler handles expense-related endpoints.
type ExpensesHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(svc *service.Service, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{svc: svc, log: log}
}

// List handles GET /api/expenses
func (h *ExpensesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	q := service.ListQuery{
		ChatID: parseChatID(query.Get("chat_id")),
		Query:  query.Get("q"),
	}
	if v := query.Get("page"); v != "" {
		q.Page, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := query.Get("page_size"); v != "" {
		q.PageSize, _ = strconv.ParseInt(v, 10, 64)
	}

	tz := query.Get("tz")
	var err error
	if q.Start, err = parseBound(query.Get("start"), tz, false); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid start format")
		return
	}
	if q.End, err = parseBound(query.Get("end"), tz, true); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid end format")
		return
	}

	res, err := h.svc.List(ctx, q)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	if res.Items == nil {
		res.Items = []domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Summary handles GET /api/expenses/summary
func (h *ExpensesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	tz := query.Get("tz")
	start, err := parseBound(query.Get("start"), tz, false)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid start format")
		return
	}
	end, err := parseBound(query.Get("end"), tz, true)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid end format")
		return
	}

	totals, err := h.svc.Summary(ctx, parseChatID(query.Get("chat_id")), start, end)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to summarize expenses")
		return
	}

	if totals == nil {
		totals = []store.CategoryTotal{}
	}
	var grand float64
	for _, t := range totals {
		grand += t.Total
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": totals,
		"total":      grand,
	})
}

// Create handles POST /api/expenses
func (h *ExpensesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   *float64 `json:"amount"`
		Time     string   `json:"time"`
		Category string   `json:"category"`
		Payee    string   `json:"payee"`
		Note     string   `json:"note"`
		TZ       string   `json:"tz"`
		ChatID   *int64   `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	exp, err := h.svc.Create(r.Context(), service.CreateInput{
		Amount:   req.Amount,
		Time:     req.Time,
		Category: req.Category,
		Payee:    req.Payee,
		Note:     req.Note,
		Source:   domain.SourceWeb,
		TZ:       req.TZ,
		ChatID:   req.ChatID,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, exp)
}

// Parse handles POST /api/expenses/parse
func (h *ExpensesHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		TZ     string `json:"tz"`
		ChatID *int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	exp, draft, err := h.svc.ParseAndCreate(r.Context(), service.ParseInput{
		Text:   req.Text,
		TZ:     req.TZ,
		ChatID: req.ChatID,
		Source: domain.SourceWeb,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"expense": exp,
		"draft":   draft,
	})
}

// Update handles PATCH /api/expenses/{id}
func (h *ExpensesHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Amount   *float64 `json:"amount"`
		Category *string  `json:"category"`
		Payee    *string  `json:"payee"`
		Note     *string  `json:"note"`
		Time     *string  `json:"time"`
		TZ       string   `json:"tz"`
		ChatID   *int64   `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	exp, err := h.svc.Update(r.Context(), id, service.UpdateInput{
		Amount:   req.Amount,
		Category: req.Category,
		Payee:    req.Payee,
		Note:     req.Note,
		Time:     req.Time,
		TZ:       req.TZ,
		ChatID:   req.ChatID,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, exp)
}

// Delete handles DELETE /api/expenses/{id}
func (h *ExpensesHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Delete(r.Context(), id, parseChatID(r.URL.Query().Get("chat_id"))); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

var ymPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ReportsHandler handles asynchronous report generation endpoints.
type ReportsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{publisher: publisher, store: store, log: log}
}

// Enqueue handles POST /api/reports
func (h *ReportsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		YM     string `json:"ym"`
		ChatID *int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !ymPattern.MatchString(req.YM) {
		middleware.WriteError(w, http.StatusBadRequest, "ym must look like 2025-07")
		return
	}

	job := &jobs.ReportJob{YM: req.YM, ChatID: req.ChatID}
	if err := h.publisher.PublishReport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue report job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue report job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("ym", req.YM).Msg("Report job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"ym":     req.YM,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/reports/{id}
func (h *ReportsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// Download handles GET /api/reports/{id}/download
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status != jobs.JobStatusCompleted {
		middleware.WriteError(w, http.StatusConflict, fmt.Sprintf("Job is %s", job.Status))
		return
	}

	data, err := h.store.GetResult(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Report not found")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses-%s.xlsx"`, job.YM))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Expense not found")
	default:
		log.Error().Err(err).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseChatID(v string) *int64 {
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// parseBound reads a time bound as RFC3339 or as a plain date in the
// given zone. A plain end date is inclusive, so it extends to the last
// instant of that day.
func parseBound(v, tz string, end bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return &t, nil
}
