// Package store persists expense records in MongoDB and answers the
// list/summary queries with aggregation pipelines, so filtering, sorting
// and grouping happen inside the store instead of in this process.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xuxing3/JiZhang/internal/domain"
)

// ErrNotFound is returned when an identifier resolves to no record
// (within the active identity scope).
var ErrNotFound = errors.New("expense not found")

// ListFilter selects and pages records for List.
type ListFilter struct {
	// ChatID restricts to one identity scope; nil means all scopes.
	ChatID *int64

	// Start/End bound the canonical time, inclusive. Records whose
	// canonical time cannot be resolved never match a bounded filter.
	Start *time.Time
	End   *time.Time

	// Query is a case-insensitive substring match over payee, category
	// and note. It is escaped; regex metacharacters match literally.
	Query string

	Page     int64
	PageSize int64
}

// ListResult is one page plus the total match count, computed
// independently of the page window.
type ListResult struct {
	Items []domain.Expense
	Total int64
}

// SummaryFilter selects records for SummarizeByCategory.
type SummaryFilter struct {
	ChatID *int64
	Start  *time.Time
	End    *time.Time
}

// CategoryTotal is one group row of the category summary.
type CategoryTotal struct {
	Category string  `bson:"_id" json:"category"`
	Total    float64 `bson:"total" json:"total"`
	Count    int64   `bson:"count" json:"count"`
}

// Patch is a partial update. Nil fields are left untouched; the update
// is applied with $set only, so fields this code does not know about
// survive verbatim.
type Patch struct {
	Amount   *float64
	Category *string
	Payee    *string
	Note     *string

	// Time and its mirrors are always set together (or not at all);
	// the orchestrator guarantees they agree.
	Time      *time.Time
	TSUTC     *time.Time
	TimeLocal *string
	TZ        *string
	YM        *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Payee == nil &&
		p.Note == nil && p.Time == nil
}

// ExpenseRepository is the persistence surface the orchestrator needs.
type ExpenseRepository interface {
	// Insert stores a new record, stamping createdAt, and returns it
	// with its assigned identifier.
	Insert(ctx context.Context, e *domain.Expense) (*domain.Expense, error)

	// Update applies a patch to one record and returns the updated
	// document, or ErrNotFound.
	Update(ctx context.Context, id primitive.ObjectID, chatID *int64, patch Patch) (*domain.Expense, error)

	// Delete removes one record, or returns ErrNotFound.
	Delete(ctx context.Context, id primitive.ObjectID, chatID *int64) error

	// List answers the paginated, filtered listing query.
	List(ctx context.Context, f ListFilter) (*ListResult, error)

	// SummarizeByCategory groups matching records by category, summing
	// amounts, ordered by total descending.
	SummarizeByCategory(ctx context.Context, f SummaryFilter) ([]CategoryTotal, error)

	// ListMonth returns records labeled with one ym partition, newest
	// first. limit <= 0 means no limit.
	ListMonth(ctx context.Context, chatID *int64, ym string, limit int64) ([]domain.Expense, error)
}
