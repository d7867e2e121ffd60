// Package diagnostics renders what a trained model has learned.
//
// The Engine exports reconstruction and sample grids at the end of each
// validation epoch, and offers figure routines for offline inspection:
// latent traversals, reconstructions beside random generations, and a 2D
// t-SNE projection of the latent means. It reads the model but never
// changes training state.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/manifold"
	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vision"
)

// Output directories under the run log directory.
const (
	ReconstructionsDir = "Reconstructions"
	SamplesDir         = "Samples"
	FiguresDir         = "Diagnostics"
)

// SampleCount is the number of images drawn for the per-epoch sample grid.
const SampleCount = 144

// DefaultMaxLatentPoints caps the points VisualizeLatentSpace hands to the
// exact O(n²) t-SNE.
const DefaultMaxLatentPoints = 2000

// ErrEmptySource is returned when an evaluation source yields no batch.
var ErrEmptySource = errors.New("evaluation source yielded no batch")

// Env is the view of the experiment the engine needs.
type Env interface {
	CurrentDevice() tensor.Device
	Run() experiment.Run
}

// Engine produces diagnostic images for one model.
type Engine struct {
	model model.Model
	env   Env
	rng   *rand.Rand
	tsne  manifold.Config
	grid  vision.GridOptions

	maxPoints int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed seeds the random draws of the figure routines.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(seed, seed+1)) }
}

// WithTSNE overrides the t-SNE settings of VisualizeLatentSpace.
func WithTSNE(cfg manifold.Config) Option {
	return func(e *Engine) { e.tsne = cfg }
}

// WithMaxPoints caps the latent points projected by VisualizeLatentSpace.
// n <= 0 projects every point.
func WithMaxPoints(n int) Option {
	return func(e *Engine) { e.maxPoints = n }
}

// New creates an Engine for m. env supplies the device and run directory.
func New(m model.Model, env Env, opts ...Option) *Engine {
	e := &Engine{
		model: m,
		env:   env,
		rng:   rand.New(rand.NewPCG(experiment.DefaultManualSeed, experiment.DefaultManualSeed+1)),
		tsne:  manifold.DefaultConfig(),
		grid:  vision.DefaultGridOptions(),

		maxPoints: DefaultMaxLatentPoints,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sampler adapts New to experiment.WithDiagnostics.
func Sampler(opts ...Option) func(*experiment.Experiment) experiment.Sampler {
	return func(exp *experiment.Experiment) experiment.Sampler {
		return New(exp.Model(), exp, opts...)
	}
}

// device returns the experiment's current device, or fallback before the
// first step.
func (e *Engine) device(fallback tensor.Device) tensor.Device {
	if d := e.env.CurrentDevice(); d != tensor.NoDevice {
		return d
	}
	return fallback
}

// SampleImages writes the reconstruction grid of the first batch of src and
// a grid of SampleCount unconditional samples for epoch.
//
// A model that cannot sample unconditionally only gets the reconstruction
// grid.
func (e *Engine) SampleImages(ctx context.Context, src data.Source, epoch int) error {
	if src == nil {
		return ErrEmptySource
	}
	batch, ok := data.First(src)
	if !ok {
		return ErrEmptySource
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dev := e.device(batch.Device())
	batch = batch.To(dev)
	run := e.env.Run()

	recons, err := e.model.Generate(batch.Images, batch.Labels)
	if err != nil {
		return fmt.Errorf("generate reconstructions: %w", err)
	}
	path := run.Path(ReconstructionsDir, fmt.Sprintf("recons_%s_Epoch_%d.png", run.Name, epoch))
	if err := vision.SaveGrid(path, recons, e.grid); err != nil {
		return fmt.Errorf("save reconstructions: %w", err)
	}
	klog.V(2).InfoS("Saved reconstructions", "path", path)

	samples, err := e.model.Sample(SampleCount, dev, batch.Labels)
	if errors.Is(err, model.ErrSamplingUnsupported) {
		klog.V(2).InfoS("Model does not sample unconditionally, skipping samples", "model", e.model.Name())
		return nil
	}
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	path = run.Path(SamplesDir, fmt.Sprintf("%s_Epoch_%d.png", run.Name, epoch))
	if err := vision.SaveGrid(path, samples, e.grid); err != nil {
		return fmt.Errorf("save samples: %w", err)
	}
	klog.V(2).InfoS("Saved samples", "path", path)
	return nil
}
