package collector

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Sample holds one collected value for a stream.
type Sample struct {
	Stream string    // e.g. "pool"
	Value  float64   // numeric value after scaling
	At     time.Time // time the value was observed (usually now)
}

// CollectAll runs every collector and returns the samples that succeeded,
// ordered by stream name. A failing source is logged and skipped so one
// broken sensor does not stop the others from being logged.
func CollectAll(ctx context.Context, colls map[string]Collector, log *zap.Logger) []Sample {
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Sample, 0, len(names))
	for _, name := range names {
		v, err := colls[name].Collect(ctx)
		if err != nil {
			log.Error("collector failed", zap.String("stream", name), zap.Error(err))
			continue
		}
		out = append(out, Sample{Stream: name, Value: v, At: time.Now()})
	}
	return out
}
