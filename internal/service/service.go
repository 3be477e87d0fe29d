// Package service is the ingestion orchestrator: it chooses an
// extraction path for incoming expenses, validates the result, keeps the
// time mirror fields consistent, and talks to the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xuxing3/JiZhang/internal/classify"
	"github.com/xuxing3/JiZhang/internal/config"
	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/export"
	"github.com/xuxing3/JiZhang/internal/extract"
	"github.com/xuxing3/JiZhang/internal/store"
	"github.com/xuxing3/JiZhang/internal/timeres"
)

// ErrValidation marks a caller error: missing or invalid required
// input. Not-found conditions surface as store.ErrNotFound. Everything
// else is a server-side failure.
var ErrValidation = errors.New("validation failed")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DraftExtractor is the AI adapter surface the orchestrator uses. A nil
// return means "no result" and is not an error.
type DraftExtractor interface {
	Enabled() bool
	FromText(ctx context.Context, text string) *extract.Draft
	FromImage(ctx context.Context, mimeType string, data []byte) *extract.Draft
}

// Service wires the extraction chain, time reconciliation and the store
// together. It holds no mutable state beyond its configuration.
type Service struct {
	repo store.ExpenseRepository
	ai   DraftExtractor
	cfg  *config.Config
	log  zerolog.Logger
	now  func() time.Time
}

// New creates the orchestrator. ai may be nil when no provider is
// configured; every parse then goes through the heuristic extractor.
func New(repo store.ExpenseRepository, ai DraftExtractor, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{repo: repo, ai: ai, cfg: cfg, log: log, now: time.Now}
}

// scope applies the server-enforced identity scope: when FORCE_CHAT_ID
// is configured it silently overrides whatever the caller sent.
func (s *Service) scope(requested *int64) *int64 {
	if s.cfg.ForceChatID != nil {
		return s.cfg.ForceChatID
	}
	return requested
}

// CreateInput is the direct-create request. Amount and Time are
// required; everything else has defaults.
type CreateInput struct {
	Amount   *float64
	Time     string
	Category string
	Payee    string
	Note     string
	Source   domain.Source
	TZ       string
	ChatID   *int64
}

// Create validates and persists an explicitly-specified expense.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Expense, error) {
	if in.Amount == nil {
		return nil, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	if err := validAmount(*in.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Time) == "" {
		return nil, fmt.Errorf("%w: time is required", ErrValidation)
	}

	tz := s.tz(in.TZ)
	when, err := parseExplicitTime(in.Time, tz)
	if err != nil {
		return nil, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = domain.CategoryUnknown
	}
	source := in.Source
	if source == "" {
		source = domain.SourceWeb
	}

	return s.persist(ctx, &domain.Expense{
		Amount:   *in.Amount,
		Category: category,
		Payee:    strings.TrimSpace(in.Payee),
		Note:     strings.TrimSpace(in.Note),
		Source:   source,
	}, when, tz, in.ChatID)
}

// ParseInput is the parse-and-create request.
type ParseInput struct {
	Text   string
	TZ     string
	ChatID *int64
	Source domain.Source
}

// ParseAndCreate extracts a draft from free text (AI first, heuristic
// fallback), validates it, and persists the result. The raw draft is
// returned alongside the record so the caller can offer corrections.
func (s *Service) ParseAndCreate(ctx context.Context, in ParseInput) (*domain.Expense, *extract.Draft, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil, fmt.Errorf("%w: text is required", ErrValidation)
	}

	var draft *extract.Draft
	if s.ai != nil && s.ai.Enabled() {
		draft = s.ai.FromText(ctx, text)
	}
	if draft == nil {
		d := extract.FromText(text)
		draft = &d
	}

	exp, err := s.createFromDraft(ctx, draft, text, in.TZ, in.ChatID, in.Source)
	if err != nil {
		return nil, nil, err
	}
	return exp, draft, nil
}

// CreateFromImage runs the receipt-screenshot path: vision extraction
// only, no heuristic fallback possible.
func (s *Service) CreateFromImage(ctx context.Context, mimeType string, data []byte, tz string, chatID *int64) (*domain.Expense, *extract.Draft, error) {
	if s.ai == nil || !s.ai.Enabled() {
		return nil, nil, fmt.Errorf("%w: no extraction provider configured", ErrValidation)
	}
	draft := s.ai.FromImage(ctx, mimeType, data)
	if draft == nil {
		return nil, nil, fmt.Errorf("%w: could not read the image", ErrValidation)
	}

	exp, err := s.createFromDraft(ctx, draft, draft.Note, tz, chatID, domain.SourceTelegram)
	if err != nil {
		return nil, nil, err
	}
	return exp, draft, nil
}

// createFromDraft normalizes a draft and persists it: amount must be a
// finite non-zero number, the category is (re)classified with the
// draft's own category as a hint, the note defaults to the original
// text, and the draft time string is composed against the zone.
func (s *Service) createFromDraft(ctx context.Context, draft *extract.Draft, text, tz string, chatID *int64, source domain.Source) (*domain.Expense, error) {
	if draft.Amount == nil {
		return nil, fmt.Errorf("%w: no amount found in %q", ErrValidation, text)
	}
	amount := *draft.Amount
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: no usable amount found in %q", ErrValidation, text)
	}
	// Extractors may read refunds as negatives; an expense is a magnitude.
	amount = math.Abs(amount)

	payee := strings.TrimSpace(draft.Payee)
	category := classify.Pick(payee, text, draft.Category)
	note := strings.TrimSpace(draft.Note)
	if note == "" {
		note = text
	}
	if source == "" {
		source = domain.SourceTelegram
	}

	zone := s.tz(tz)
	when := timeres.Compose(draft.Time, zone, s.now())

	return s.persist(ctx, &domain.Expense{
		Amount:   amount,
		Category: category,
		Payee:    payee,
		Note:     note,
		Source:   source,
	}, when, zone, chatID)
}

// persist stamps scope and time mirrors and inserts. Mirrors are always
// written together with time so they can never disagree.
func (s *Service) persist(ctx context.Context, e *domain.Expense, when time.Time, tz string, chatID *int64) (*domain.Expense, error) {
	if id := s.scope(chatID); id != nil {
		e.ChatID = *id
	}

	mirrors := timeres.MakeMirrors(when, tz)
	e.Time = when
	e.TSUTC = &mirrors.TSUTC
	e.TimeLocal = mirrors.TimeLocal
	e.TZ = mirrors.TZ
	e.YM = mirrors.YM
	createdAtUTC := s.now().UTC()
	e.CreatedAtUTC = &createdAtUTC

	inserted, err := s.repo.Insert(ctx, e)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to insert expense")
		return nil, err
	}
	return inserted, nil
}

func (s *Service) tz(tz string) string {
	if strings.TrimSpace(tz) != "" {
		return tz
	}
	return s.cfg.DefaultTZ
}

func validAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: amount is not a number", ErrValidation)
	}
	if v < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	}
	return nil
}

// parseExplicitTime parses a required, caller-supplied time value. This
// is strict on purpose: direct create asked for an explicit time, so a
// value we cannot read is a validation failure, not a best-effort gap.
func parseExplicitTime(raw, tz string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-1-2 15:04", "2006/1/2 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrValidation, raw)
}

// UpdateInput is a partial update; nil fields are untouched.
type UpdateInput struct {
	Amount   *float64
	Category *string
	Payee    *string
	Note     *string
	Time     *string
	TZ       string
	ChatID   *int64
}

// Update applies a partial update to one record. Changing time
// recomputes all four mirrors; changing anything else leaves them
// alone.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrValidation, id)
	}

	patch := store.Patch{
		Category: trimmed(in.Category),
		Payee:    trimmed(in.Payee),
		Note:     in.Note,
	}
	if in.Amount != nil {
		if err := validAmount(*in.Amount); err != nil {
			return nil, err
		}
		patch.Amount = in.Amount
	}
	if in.Time != nil {
		tz := s.tz(in.TZ)
		when, err := parseExplicitTime(*in.Time, tz)
		if err != nil {
			return nil, err
		}
		mirrors := timeres.MakeMirrors(when, tz)
		patch.Time = &when
		patch.TSUTC = &mirrors.TSUTC
		patch.TimeLocal = &mirrors.TimeLocal
		patch.TZ = &mirrors.TZ
		patch.YM = &mirrors.YM
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	return s.repo.Update(ctx, oid, s.scope(in.ChatID), patch)
}

// Delete removes one record by identifier.
func (s *Service) Delete(ctx context.Context, id string, chatID *int64) error {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("%w: invalid id %q", ErrValidation, id)
	}
	return s.repo.Delete(ctx, oid, s.scope(chatID))
}

// ListQuery selects a page of records.
type ListQuery struct {
	ChatID   *int64
	Page     int64
	PageSize int64
	Start    *time.Time
	End      *time.Time
	Query    string
}

// ListResult is the page plus totals.
type ListResult struct {
	Items []domain.Expense `json:"items"`
	Total int64            `json:"total"`
	Pages int64            `json:"pages"`
}

// List answers the paginated listing. Each returned record's time field
// is normalized to its canonical instant, so mixed-vintage records all
// present the same shape to clients.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	res, err := s.repo.List(ctx, store.ListFilter{
		ChatID:   s.scope(q.ChatID),
		Start:    q.Start,
		End:      q.End,
		Query:    strings.TrimSpace(q.Query),
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list expenses")
		return nil, err
	}

	for i := range res.Items {
		if t := timeres.Resolve(&res.Items[i]); t != nil {
			res.Items[i].Time = *t
		} else {
			res.Items[i].Time = nil
		}
	}

	return &ListResult{
		Items: res.Items,
		Total: res.Total,
		Pages: (res.Total + q.PageSize - 1) / q.PageSize,
	}, nil
}

// Summary answers the category rollup.
func (s *Service) Summary(ctx context.Context, chatID *int64, start, end *time.Time) ([]store.CategoryTotal, error) {
	totals, err := s.repo.SummarizeByCategory(ctx, store.SummaryFilter{
		ChatID: s.scope(chatID),
		Start:  start,
		End:    end,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to summarize expenses")
		return nil, err
	}
	return totals, nil
}

// MonthRecords returns one ym partition, newest first.
func (s *Service) MonthRecords(ctx context.Context, chatID *int64, ym string, limit int64) ([]domain.Expense, error) {
	return s.repo.ListMonth(ctx, s.scope(chatID), ym, limit)
}

// MonthlyReport builds the XLSX summary workbook for one month.
func (s *Service) MonthlyReport(ctx context.Context, chatID *int64, ym string) ([]byte, error) {
	records, err := s.repo.ListMonth(ctx, s.scope(chatID), ym, 0)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records for %s", ErrValidation, ym)
	}
	return export.MonthlyWorkbook(records, s.cfg.DefaultTZ)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.Trim(strings.TrimSpace(*s), `"'`)
	return &t
}
