package storage

import (
	"context"

	"logserver/daterange"
)

// Reading is a single persisted row of the log table.
type Reading struct {
	Time   string `json:"time"`   // canonical timestamp, assigned by the store
	Stream string `json:"stream"` // caller-chosen tag, e.g. "temp"
	Data   Value  `json:"data"`
}

// Extreme is the result of a MAX/MIN query. Both fields are null when no row
// matched.
type Extreme struct {
	Time  *string
	Value Value
}

// Store abstracts the append-only log back-end.
type Store interface {
	// Append inserts one reading stamped with the store's current time.
	Append(ctx context.Context, stream string, data Value) error

	// CountInRange counts rows of every stream inside r.
	CountInRange(ctx context.Context, r daterange.Range) (int64, error)

	// FetchInRange returns the rows of stream inside r in storage order.
	// An empty (non-nil) slice is returned when nothing matches.
	FetchInRange(ctx context.Context, stream string, r daterange.Range) ([]Reading, error)

	// MaxInRange returns the largest value of stream inside r. Among equal
	// maxima the earliest timestamp wins.
	MaxInRange(ctx context.Context, stream string, r daterange.Range) (Extreme, error)

	// MinInRange is the counterpart of MaxInRange.
	MinInRange(ctx context.Context, stream string, r daterange.Range) (Extreme, error)

	// AvgInRange returns the mean of stream inside r, or nil when no row
	// matched.
	AvgInRange(ctx context.Context, stream string, r daterange.Range) (*float64, error)

	// Latest returns the most recent reading of stream regardless of any
	// range, or nil when the stream is empty.
	Latest(ctx context.Context, stream string) (*Reading, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}
