// Package daterange turns the loosely specified date parameters of a query
// request into a concrete (start, end) pair in the store's timestamp format.
package daterange

import (
	"net/url"
	"time"
)

// Layout is the canonical timestamp format used both in the log table and on
// the wire: local wall-clock time, second precision, no zone suffix.
const Layout = "2006-01-02 15:04:05"

// Window is the span of the default range when neither day nor start/end is
// given.
const Window = 24 * time.Hour

// Params holds the optional date arguments of a request. A nil field means
// the parameter was absent; an empty string is a present (empty) value.
type Params struct {
	Day   *string
	Start *string
	End   *string
}

// Range is a resolved, request-local interval. Both bounds are exclusive when
// used as a filter.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParamsFromQuery extracts day, start and end from a query string. Presence
// is decided by the key existing, not by the value being non-empty.
func ParamsFromQuery(q url.Values) Params {
	return Params{
		Day:   optional(q, "day"),
		Start: optional(q, "start"),
		End:   optional(q, "end"),
	}
}

// Day is a shorthand for a whole-day Params.
func Day(day string) Params {
	return Params{Day: &day}
}

// Between is a shorthand for an explicit start/end Params.
func Between(start, end string) Params {
	return Params{Start: &start, End: &end}
}

// Query renders p back into query parameters, omitting absent fields.
func (p Params) Query(q url.Values) {
	if p.Day != nil {
		q.Set("day", *p.Day)
	}
	if p.Start != nil {
		q.Set("start", *p.Start)
	}
	if p.End != nil {
		q.Set("end", *p.End)
	}
}

// Resolve maps p onto a concrete range. It never fails: values are used
// verbatim with no parsing or validation.
//
// A day takes precedence over start/end and yields the closed calendar day
// "day 00:00:00" .. "day 23:59:59". Otherwise each bound is taken from its
// parameter when present and defaults to now-24h (start) or now (end).
func Resolve(p Params, now time.Time) Range {
	if p.Day != nil {
		return Range{
			Start: *p.Day + " 00:00:00",
			End:   *p.Day + " 23:59:59",
		}
	}

	r := Range{
		Start: Format(now.Add(-Window)),
		End:   Format(now),
	}
	if p.Start != nil {
		r.Start = *p.Start
	}
	if p.End != nil {
		r.End = *p.End
	}
	return r
}

// Format renders t in its own location using Layout. Pass a time in the
// zone whose wall clock should be preserved, normally time.Local.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse is the inverse of Format for a given location.
func Parse(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(Layout, s, loc)
}

func optional(q url.Values, key string) *string {
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}
