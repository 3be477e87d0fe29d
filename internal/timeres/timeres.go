// Package timeres reconciles the several time representations an expense
// record may carry into one canonical instant, and produces the legacy
// mirror fields written alongside it.
//
// The collection was fed by three producers over the years (a Telegram
// bot, a web form, and an AI parser) and none of them agreed on a time
// encoding. Resolve implements the one precedence order that keeps the
// mixed-vintage collection sortable without a migration; the same order
// is mirrored in the Mongo pipeline built by the store package.
package timeres

import (
	"regexp"
	"time"

	"github.com/xuxing3/JiZhang/internal/domain"
)

// DefaultZone is the zone assumed when a record or request names none.
const DefaultZone = "Asia/Shanghai"

// LocalLayout is how time_local mirrors are formatted.
const LocalLayout = "2006-01-02 15:04"

// Layouts tried, in order, when the time field holds a string.
var stringLayouts = []string{
	"2006-1-2 15:04",
	"2006/1/2, 15:04",
}

// Layouts for the generic last-resort parse of a date-like string.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/1/2 15:04",
	"2006-1-2",
}

var (
	reComposeFull = regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})[ T]?(\d{1,2}:\d{2})`)
	reComposeHM   = regexp.MustCompile(`(\d{1,2}:\d{2})`)
	slashes       = regexp.MustCompile(`/`)
)

// Resolve computes the canonical instant for a record, first match wins:
//
//  1. time as an instant
//  2. time as a string (layouts above, then generic parse)
//  3. ts_utc
//  4. created_at_utc
//  5. time_local interpreted in the record's tz (default zone if absent)
//  6. createdAt
//
// Records where nothing parses resolve to nil: they sort last and are
// excluded from time-range filters. This order must not change; it
// decides sort order and range membership for historical data.
func Resolve(e *domain.Expense) *time.Time {
	if t, ok := e.TimeInstant(); ok {
		return &t
	}
	if s, ok := e.TimeString(); ok && s != "" {
		loc := zoneOrDefault(e.TZ)
		for _, layout := range stringLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return &t
			}
		}
		if t, ok := parseGeneric(s, loc); ok {
			return &t
		}
	}
	if e.TSUTC != nil {
		return e.TSUTC
	}
	if e.CreatedAtUTC != nil {
		return e.CreatedAtUTC
	}
	if e.TimeLocal != "" {
		loc := zoneOrDefault(e.TZ)
		if t, err := time.ParseInLocation("2006-1-2 15:04", e.TimeLocal, loc); err == nil {
			return &t
		}
		if t, ok := parseGeneric(e.TimeLocal, loc); ok {
			return &t
		}
	}
	if e.CreatedAt != nil {
		return e.CreatedAt
	}
	return nil
}

// Mirrors holds the legacy fields derived from one canonical instant.
type Mirrors struct {
	TSUTC     time.Time
	TZ        string
	TimeLocal string
	YM        string
}

// MakeMirrors derives the mirror fields for an instant and zone name.
// An unrecognized zone falls back to UTC formatting rather than failing;
// the zone string is still recorded as given so the record keeps saying
// what the caller meant. The derivation is idempotent.
func MakeMirrors(t time.Time, tz string) Mirrors {
	if tz == "" {
		tz = DefaultZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return Mirrors{
		TSUTC:     t.UTC(),
		TZ:        tz,
		TimeLocal: t.In(loc).Format(LocalLayout),
		YM:        t.UTC().Format("2006-01"),
	}
}

// Compose turns a caller-supplied time string into a concrete instant.
// A bare "HH:MM" is anchored to today as seen in the given zone; a full
// date+time is parsed in that zone; anything absent or unparseable
// becomes now. Timestamps here are advisory, so this never errors.
func Compose(raw, tz string, now time.Time) time.Time {
	loc := zoneOrDefault(tz)

	if m := reComposeFull.FindStringSubmatch(raw); m != nil {
		s := slashes.ReplaceAllString(m[1], "-") + " " + m[2]
		if t, err := time.ParseInLocation("2006-1-2 15:04", s, loc); err == nil {
			return t
		}
	}
	if m := reComposeHM.FindStringSubmatch(raw); m != nil {
		s := now.In(loc).Format("2006-01-02") + " " + m[1]
		if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
			return t
		}
	}
	return now
}

func zoneOrDefault(tz string) *time.Location {
	if tz == "" {
		tz = DefaultZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseGeneric(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
