package metrics

import (
	"context"
	"fmt"
	"sync"
)

// Reducer combines one logged value across the replicas of a run.
type Reducer interface {
	// Reduce contributes v under key and returns the reduced value.
	Reduce(ctx context.Context, key string, v float64) (float64, error)

	// Size returns the number of participating replicas.
	Size() int
}

// Local is the Reducer of a single worker. It returns v unchanged and never blocks.
type Local struct{}

// Reduce returns v.
func (Local) Reduce(_ context.Context, _ string, v float64) (float64, error) { return v, nil }

// Size returns 1.
func (Local) Size() int { return 1 }

// Group averages values across a fixed number of in-process replicas.
//
// Every replica shares the same *Group. A Reduce call blocks until all
// replicas have contributed the same key, then each of them receives the
// mean. Replicas must log keys in the same order; Aggregator guarantees this
// by sorting keys.
type Group struct {
	size int

	mu     sync.Mutex
	rounds map[string]*round
}

type round struct {
	sum  float64
	n    int
	mean float64
	done chan struct{}
}

// NewGroup creates a Group of size replicas.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("metrics: group size must be >= 1, got %d", size)
	}
	return &Group{size: size, rounds: make(map[string]*round)}, nil
}

// Size returns the number of replicas.
func (g *Group) Size() int { return g.size }

// Reduce contributes v and waits for the other replicas.
//
// A group of one returns immediately. If ctx is done before the round
// completes, the contribution is withdrawn and ctx.Err() is returned.
func (g *Group) Reduce(ctx context.Context, key string, v float64) (float64, error) {
	if g.size == 1 {
		return v, nil
	}

	g.mu.Lock()
	r, ok := g.rounds[key]
	if !ok {
		r = &round{done: make(chan struct{})}
		g.rounds[key] = r
	}
	r.sum += v
	r.n++
	if r.n == g.size {
		r.mean = r.sum / float64(g.size)
		delete(g.rounds, key)
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.mean, nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		select {
		case <-r.done:
			// Completed while we were acquiring the lock.
			return r.mean, nil
		default:
		}
		r.sum -= v
		r.n--
		if r.n == 0 {
			delete(g.rounds, key)
		}
		return 0, ctx.Err()
	}
}
