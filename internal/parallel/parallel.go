// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16,
	}
}

// chunks calls f once per contiguous [lo, hi) chunk of [0, n) and returns
// the number of chunks. Chunks run concurrently unless cfg disables it.
func chunks(n int, cfg Config, f func(chunk, lo, hi int)) int {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinChunkSize {
		if n > 0 {
			f(0, 0, n)
		}
		return 1
	}

	size := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	count := (n + size - 1) / size

	var wg sync.WaitGroup
	for c := range count {
		lo, hi := c*size, min((c+1)*size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(c, lo, hi)
		}()
	}
	wg.Wait()
	return count
}

// For executes f(i) for i in [0, n). Each i must touch disjoint state.
func For(n int, f func(i int), cfg Config) {
	chunks(n, cfg, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}

// Sum returns the sum of f(i) for i in [0, n).
//
// Partial sums are combined in chunk order, so the result is deterministic
// for a fixed Config.
func Sum(n int, f func(i int) float64, cfg Config) float64 {
	partial := make([]float64, max(cfg.NumWorkers, 1)+1)
	count := chunks(n, cfg, func(c, lo, hi int) {
		var s float64
		for i := lo; i < hi; i++ {
			s += f(i)
		}
		partial[c] = s
	})

	var total float64
	for _, s := range partial[:count] {
		total += s
	}
	return total
}
