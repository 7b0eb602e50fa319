package client

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"logserver/daterange"
	"logserver/storage"
)

// Summary is the min/avg/max of a stream over the default window plus its
// latest reading.
type Summary struct {
	Stream string
	Min    storage.Extreme
	Max    storage.Extreme
	Avg    *float64
	Latest *storage.Reading
}

// Summary fetches the four figures concurrently.
func (c *Client) Summary(ctx context.Context, stream string) (*Summary, error) {
	s := &Summary{Stream: stream}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.Min, err = c.Min(ctx, stream, daterange.Params{})
		return err
	})
	g.Go(func() (err error) {
		s.Max, err = c.Max(ctx, stream, daterange.Params{})
		return err
	})
	g.Go(func() (err error) {
		s.Avg, err = c.Avg(ctx, stream, daterange.Params{})
		return err
	})
	g.Go(func() (err error) {
		s.Latest, err = c.Latest(ctx, stream)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

// DayStats holds the figures of one calendar day.
type DayStats struct {
	Day     string // YYYY-MM-DD
	Weekday time.Weekday
	Min     storage.Value
	Max     storage.Value
	Avg     *float64
}

// Week is a seven-day report. The week-level figures only consider days
// that had numeric readings; they are nil for an empty week.
type Week struct {
	Stream string
	Days   []DayStats
	Min    *float64
	Max    *float64
	Avg    *float64 // mean of the daily averages
}

// Weekly reports the seven calendar days preceding now's day, oldest first.
// Every day is fetched concurrently.
func (c *Client) Weekly(ctx context.Context, stream string, now time.Time) (*Week, error) {
	const days = 7
	w := &Week{Stream: stream, Days: make([]DayStats, days)}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < days; i++ {
		d := now.AddDate(0, 0, i-days)
		ds := &w.Days[i]
		ds.Day = d.Format("2006-01-02")
		ds.Weekday = d.Weekday()
		p := daterange.Day(ds.Day)

		g.Go(func() error {
			lo, err := c.Min(ctx, stream, p)
			if err != nil {
				return err
			}
			ds.Min = lo.Value
			return nil
		})
		g.Go(func() error {
			hi, err := c.Max(ctx, stream, p)
			if err != nil {
				return err
			}
			ds.Max = hi.Value
			return nil
		})
		g.Go(func() (err error) {
			ds.Avg, err = c.Avg(ctx, stream, p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total float64
	var n int
	for _, ds := range w.Days {
		if ds.Min.Kind() == storage.KindNumber && (w.Min == nil || ds.Min.Float() < *w.Min) {
			v := ds.Min.Float()
			w.Min = &v
		}
		if ds.Max.Kind() == storage.KindNumber && (w.Max == nil || ds.Max.Float() > *w.Max) {
			v := ds.Max.Float()
			w.Max = &v
		}
		if ds.Avg != nil {
			total += *ds.Avg
			n++
		}
	}
	if n > 0 {
		avg := total / float64(n)
		w.Avg = &avg
	}
	return w, nil
}
