package data

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/tensor"
)

// Loader batches a Dataset. It implements Source.
//
// The final batch may be smaller than BatchSize. With Shuffle set, each pass
// visits the examples in a fresh permutation drawn from the loader's seed.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	device    tensor.Device
	rng       *rand.Rand

	err error // last pass
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	BatchSize int           // Examples per batch
	Shuffle   bool          // Permute examples each pass
	Seed      uint64        // Permutation seed
	Device    tensor.Device // Device batches are placed on (default: CPU)
}

// NewLoader creates a Loader over ds.
func NewLoader(ds Dataset, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Device == tensor.NoDevice {
		cfg.Device = tensor.CPU
	}
	return &Loader{
		ds:        ds,
		batchSize: cfg.BatchSize,
		shuffle:   cfg.Shuffle,
		device:    cfg.Device,
		//nolint:gosec // Shuffling is not security-critical
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
	}, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() Dataset { return l.ds }

// NumBatches returns the number of batches per pass.
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Batches yields one pass over the dataset. A pass that fails to collate a
// batch ends early; Err reports the failure.
func (l *Loader) Batches() iter.Seq[Batch] {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	return func(yield func(Batch) bool) {
		l.err = nil
		for start := 0; start < len(order); start += l.batchSize {
			end := min(start+l.batchSize, len(order))
			b, err := Collate(l.ds, order[start:end], l.device)
			if err != nil {
				klog.ErrorS(err, "Failed to collate batch", "start", start)
				l.err = fmt.Errorf("collate batch at %d: %w", start, err)
				return
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Err returns the error that ended the last pass early, or nil.
func (l *Loader) Err() error { return l.err }
