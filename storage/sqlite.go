package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"logserver/daterange"
)

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Option customises a SQLite store.
type Option func(*SQLite)

// WithClock replaces the clock used to stamp appended readings. The
// returned time should be in the zone whose wall clock is stored.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

// NewSQLite opens (or creates) the SQLite file at dbPath and runs the
// migration that creates the `log` table if it does not exist.
// The caller must call Close() when the program shuts down.
func NewSQLite(ctx context.Context, dbPath string, log *zap.Logger, opts ...Option) (*SQLite, error) {
	// The modernc.org driver is pure-go and works without CGO. Concurrent
	// writers wait on the busy timeout instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	// data carries no type so the engine keeps exactly what was bound.
	const stmt = `
CREATE TABLE IF NOT EXISTS log (
    time      TEXT NOT NULL,
    stream    TEXT NOT NULL,
    data
);
CREATE INDEX IF NOT EXISTS idx_log_stream_time ON log(stream, time);
`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create log table: %w", err)
	}
	s.log.Info("SQLite migration applied")
	return nil
}

// Append stores one reading stamped with the current local time.
func (s *SQLite) Append(ctx context.Context, stream string, data Value) error {
	ts := daterange.Format(s.now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO log (time, stream, data) VALUES (?, ?, ?)`,
		ts, stream, data.arg()); err != nil {
		return fmt.Errorf("insert reading for %s: %w", stream, err)
	}
	s.log.Debug("reading persisted",
		zap.String("time", ts),
		zap.String("stream", stream),
		zap.Stringer("data", data))
	return nil
}

func (s *SQLite) CountInRange(ctx context.Context, r daterange.Range) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM log WHERE time > ? AND time < ?`,
		r.Start, r.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

func (s *SQLite) FetchInRange(ctx context.Context, stream string, r daterange.Range) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, stream, data FROM log
		 WHERE stream = ? AND time > ? AND time < ?
		 ORDER BY rowid`,
		stream, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("query readings for %s: %w", stream, err)
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.Time, &rd.Stream, &rd.Data); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings for %s: %w", stream, err)
	}
	return out, nil
}

func (s *SQLite) MaxInRange(ctx context.Context, stream string, r daterange.Range) (Extreme, error) {
	return s.extreme(ctx, "DESC", stream, r)
}

func (s *SQLite) MinInRange(ctx context.Context, stream string, r daterange.Range) (Extreme, error) {
	return s.extreme(ctx, "ASC", stream, r)
}

// extreme picks the single row holding the largest (DESC) or smallest (ASC)
// value. Nulls are skipped like the SQL aggregates do; ties go to the
// earliest time and then to the first inserted row.
func (s *SQLite) extreme(ctx context.Context, dir, stream string, r daterange.Range) (Extreme, error) {
	q := `SELECT time, data FROM log
		 WHERE stream = ? AND time > ? AND time < ? AND data IS NOT NULL
		 ORDER BY data ` + dir + `, time ASC, rowid ASC
		 LIMIT 1`

	var (
		ts string
		v  Value
	)
	err := s.db.QueryRowContext(ctx, q, stream, r.Start, r.End).Scan(&ts, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return Extreme{}, nil
	}
	if err != nil {
		return Extreme{}, fmt.Errorf("query extreme for %s: %w", stream, err)
	}
	return Extreme{Time: &ts, Value: v}, nil
}

func (s *SQLite) AvgInRange(ctx context.Context, stream string, r daterange.Range) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(data) FROM log WHERE stream = ? AND time > ? AND time < ?`,
		stream, r.Start, r.End).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average readings for %s: %w", stream, err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

func (s *SQLite) Latest(ctx context.Context, stream string) (*Reading, error) {
	var rd Reading
	err := s.db.QueryRowContext(ctx,
		`SELECT time, stream, data FROM log
		 WHERE stream = ?
		 ORDER BY time DESC, rowid DESC
		 LIMIT 1`,
		stream).Scan(&rd.Time, &rd.Stream, &rd.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest for %s: %w", stream, err)
	}
	return &rd, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
