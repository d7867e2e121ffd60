package data

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/tensor"
)

// TestBatchSize is the batch size of the test loader. One test batch fills a
// 12x12 sample grid.
const TestBatchSize = 144

// Config is the data_params section of an experiment file.
type Config struct {
	DataPath       string `yaml:"data_path"`        // Directory holding the MNIST IDX files
	TrainBatchSize int    `yaml:"train_batch_size"` // Training batch size (default: 64)
	ValBatchSize   int    `yaml:"val_batch_size"`   // Validation batch size (default: 64)
	PatchSize      int    `yaml:"patch_size"`       // Image side after resizing (default: 64)
	MaxSamples     int    `yaml:"max_samples"`      // Per-split cap, 0 = all
	Synthetic      bool   `yaml:"synthetic"`        // Use generated blobs instead of MNIST
}

func (c Config) withDefaults() Config {
	if c.TrainBatchSize == 0 {
		c.TrainBatchSize = 64
	}
	if c.ValBatchSize == 0 {
		c.ValBatchSize = 64
	}
	if c.PatchSize == 0 {
		c.PatchSize = 64
	}
	return c
}

// Module groups the loaders of an experiment.
//
// Val and Test read the same held-out split: Val in a fixed order for the
// validation metrics, Test shuffled in batches of TestBatchSize for the
// images exported at the end of each validation epoch.
type Module struct {
	Train *Loader
	Val   *Loader
	Test  *Loader
}

// NewModule loads the datasets described by cfg and builds the loaders.
func NewModule(cfg Config, seed uint64, device tensor.Device) (*Module, error) {
	cfg = cfg.withDefaults()

	train, held, err := loadSplits(cfg, seed)
	if err != nil {
		return nil, err
	}
	return NewModuleFromDatasets(train, held, cfg, seed, device)
}

// NewModuleFromDatasets builds the loaders over already loaded datasets.
func NewModuleFromDatasets(train, held Dataset, cfg Config, seed uint64, device tensor.Device) (*Module, error) {
	cfg = cfg.withDefaults()

	trainLoader, err := NewLoader(train, LoaderConfig{BatchSize: cfg.TrainBatchSize, Shuffle: true, Seed: seed, Device: device})
	if err != nil {
		return nil, fmt.Errorf("train loader: %w", err)
	}
	valLoader, err := NewLoader(held, LoaderConfig{BatchSize: cfg.ValBatchSize, Device: device})
	if err != nil {
		return nil, fmt.Errorf("val loader: %w", err)
	}
	testLoader, err := NewLoader(held, LoaderConfig{BatchSize: TestBatchSize, Shuffle: true, Seed: seed + 1, Device: device})
	if err != nil {
		return nil, fmt.Errorf("test loader: %w", err)
	}
	return &Module{Train: trainLoader, Val: valLoader, Test: testLoader}, nil
}

func loadSplits(cfg Config, seed uint64) (train, held *InMemory, err error) {
	if cfg.Synthetic {
		n := cfg.MaxSamples
		if n == 0 {
			n = 1024
		}
		klog.InfoS("Using synthetic dataset", "examples", n, "patch_size", cfg.PatchSize)
		if train, err = Synthetic(n, cfg.PatchSize, 10, seed); err != nil {
			return nil, nil, err
		}
		held, err = Synthetic(max(n/4, 1), cfg.PatchSize, 10, seed+1)
		return train, held, err
	}

	if train, err = LoadMNIST(cfg.DataPath, TrainSplit, cfg.PatchSize, cfg.MaxSamples); err != nil {
		return nil, nil, fmt.Errorf("train split: %w", err)
	}
	if held, err = LoadMNIST(cfg.DataPath, TestSplit, cfg.PatchSize, cfg.MaxSamples); err != nil {
		return nil, nil, fmt.Errorf("test split: %w", err)
	}
	return train, held, nil
}
