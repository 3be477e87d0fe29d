// Package domain holds the expense record model shared by the store,
// the orchestrator and both delivery channels.
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Source identifies the channel a record entered through.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWeb      Source = "web"
	SourceImport   Source = "import"
	SourceOther    Source = "other"
)

// Category sentinels. CategoryFallback is what the classifier returns when
// nothing matches; CategoryUnknown is the bucket absent categories fold
// into when summarizing.
const (
	CategoryFallback = "其他"
	CategoryUnknown  = "未分类"
)

// Expense is one expense record as stored in Mongo. The collection was
// populated by several producers over time, so most fields are optional
// and the time information may live in any of five places; see
// timeres.Resolve for how a canonical instant is derived.
//
// Time is deliberately untyped: new writers store a BSON datetime, the
// old web form stored a string, and many legacy records have no "time"
// at all. Extra keeps any fields this struct does not know about so that
// nothing a producer wrote is ever stripped on update.
type Expense struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID int64              `bson:"chat_id,omitempty" json:"chat_id,omitempty"`

	Amount   float64 `bson:"amount" json:"amount"`
	Category string  `bson:"category,omitempty" json:"category,omitempty"`
	Payee    string  `bson:"payee,omitempty" json:"payee,omitempty"`
	Note     string  `bson:"note,omitempty" json:"note,omitempty"`
	Source   Source  `bson:"source,omitempty" json:"source,omitempty"`

	// Time is the canonical instant going forward. Dynamic type is one of
	// time.Time, primitive.DateTime, string, or nil.
	Time any `bson:"time,omitempty" json:"time,omitempty"`

	// Legacy mirror fields, recomputed together whenever Time is written.
	TSUTC        *time.Time `bson:"ts_utc,omitempty" json:"ts_utc,omitempty"`
	TimeLocal    string     `bson:"time_local,omitempty" json:"time_local,omitempty"`
	TZ           string     `bson:"tz,omitempty" json:"tz,omitempty"`
	YM           string     `bson:"ym,omitempty" json:"ym,omitempty"`
	CreatedAtUTC *time.Time `bson:"created_at_utc,omitempty" json:"created_at_utc,omitempty"`

	// CreatedAt is stamped by the store on first insert.
	CreatedAt *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`

	Extra bson.M `bson:",inline" json:"-"`
}

// TimeInstant returns the Time field as a concrete instant when it holds
// one, unwrapping the BSON datetime representation the driver produces
// when decoding into an interface.
func (e *Expense) TimeInstant() (time.Time, bool) {
	switch t := e.Time.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

// TimeString returns the Time field as a string when legacy data stored
// it as one.
func (e *Expense) TimeString() (string, bool) {
	s, ok := e.Time.(string)
	return s, ok
}
