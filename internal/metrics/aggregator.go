// Package metrics collects the named scalars logged during training.
//
// An Aggregator is owned by one replica. Values logged with SyncDist are
// reduced across replicas through a Reducer before being recorded, so every
// replica surfaces the same number. Recorded values are forwarded to sinks
// (bbolt history, structured log) and summarized per epoch.
package metrics

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// LogOptions controls how LogDict records values.
type LogOptions struct {
	SyncDist bool // Reduce across replicas before recording
	Step     int  // Global step the values belong to
}

// Aggregator records logged values for one replica.
type Aggregator struct {
	reducer Reducer
	sinks   []Sink

	epoch  int
	seq    int
	last   map[string]float64
	sums   map[string]float64
	counts map[string]int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithReducer sets the cross-replica reducer. The default is Local.
func WithReducer(r Reducer) Option {
	return func(a *Aggregator) { a.reducer = r }
}

// WithSink adds a sink receiving every recorded value.
func WithSink(s Sink) Option {
	return func(a *Aggregator) { a.sinks = append(a.sinks, s) }
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		reducer: Local{},
		last:    make(map[string]float64),
		sums:    make(map[string]float64),
		counts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LogDict records every entry of values.
//
// Keys are processed in sorted order so that replicas issue their
// reductions in the same sequence.
func (a *Aggregator) LogDict(ctx context.Context, values map[string]float64, opts LogOptions) error {
	records := make([]Record, 0, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		v := values[name]
		if opts.SyncDist {
			reduced, err := a.reducer.Reduce(ctx, name, v)
			if err != nil {
				return fmt.Errorf("reduce %s: %w", name, err)
			}
			v = reduced
		}

		a.last[name] = v
		a.sums[name] += v
		a.counts[name]++
		records = append(records, Record{Epoch: a.epoch, Step: opts.Step, Seq: a.seq, Name: name, Value: v})
		a.seq++
	}

	for _, s := range a.sinks {
		if err := s.Write(records); err != nil {
			return fmt.Errorf("metric sink: %w", err)
		}
	}
	return nil
}

// Last returns the most recently recorded value of name.
func (a *Aggregator) Last(name string) (float64, bool) {
	v, ok := a.last[name]
	return v, ok
}

// EpochMean returns the mean of name over the current epoch.
func (a *Aggregator) EpochMean(name string) (float64, bool) {
	n := a.counts[name]
	if n == 0 {
		return 0, false
	}
	return a.sums[name] / float64(n), true
}

// Names returns the names logged in the current epoch, sorted.
func (a *Aggregator) Names() []string {
	return slices.Sorted(maps.Keys(a.counts))
}

// Epoch returns the epoch new records are tagged with.
func (a *Aggregator) Epoch() int { return a.epoch }

// EndEpoch returns the per-name means of the finished epoch and starts the next one.
func (a *Aggregator) EndEpoch() map[string]float64 {
	means := make(map[string]float64, len(a.counts))
	for name, n := range a.counts {
		means[name] = a.sums[name] / float64(n)
	}
	clear(a.sums)
	clear(a.counts)
	a.epoch++
	return means
}
