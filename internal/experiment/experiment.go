// Package experiment drives a generative model through training and
// validation steps.
//
// An Experiment owns one model and one immutable set of Params. It computes
// the loss of each batch, logs every loss component, builds the optimizers
// and schedulers the external training loop applies, and at the end of each
// validation epoch writes a checkpoint and asks the diagnostics for sample
// images. It never iterates over data or updates parameters itself.
package experiment

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/metrics"
	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
)

// ErrMissingLoss is returned when a model's loss result has no "loss" entry.
var ErrMissingLoss = errors.New("loss result has no \"loss\" entry")

// Checkpoint location relative to the run log directory.
const (
	CheckpointDir  = "Model"
	CheckpointFile = "state_dict_model.pt"
)

// Run identifies the log directory of a training run.
type Run struct {
	Name   string // Experiment name, used in image file names
	LogDir string // <save_dir>/<name>/version_<k>
}

// Path joins elem onto the run log directory.
func (r Run) Path(elem ...string) string {
	return filepath.Join(append([]string{r.LogDir}, elem...)...)
}

// Sampler exports sample images at the end of a validation epoch.
type Sampler interface {
	SampleImages(ctx context.Context, src data.Source, epoch int) error
}

// Experiment is the training orchestrator for one model on one device.
type Experiment struct {
	model  model.Model
	params Params

	logger  *metrics.Aggregator
	run     Run
	sampler Sampler
	evalSrc data.Source
	host    map[string]any

	currentDevice tensor.Device
	epoch         int
	step          int
	mode          TrainingMode
}

// Option configures an Experiment.
type Option func(*Experiment)

// WithLogger sets the metric aggregator. The default logs locally.
func WithLogger(a *metrics.Aggregator) Option {
	return func(e *Experiment) { e.logger = a }
}

// WithRun sets the run name and log directory.
func WithRun(r Run) Option {
	return func(e *Experiment) { e.run = r }
}

// WithDiagnostics installs the sampler invoked by OnValidationEnd. The
// factory receives the Experiment so the sampler can read its current
// device and run.
func WithDiagnostics(factory func(*Experiment) Sampler) Option {
	return func(e *Experiment) { e.sampler = factory(e) }
}

// WithEvalSource sets the data the sampler draws its batch from.
//
// The vae command passes the test loader here, not the loader the
// validation metrics are computed on, so exported images and val_* metrics
// come from different batches.
func WithEvalSource(src data.Source) Option {
	return func(e *Experiment) { e.evalSrc = src }
}

// WithHostInfo records host facts in every checkpoint.
func WithHostInfo(info map[string]any) Option {
	return func(e *Experiment) { e.host = info }
}

// New creates an Experiment. params is copied and never changes afterwards.
func New(m model.Model, params Params, opts ...Option) *Experiment {
	e := &Experiment{
		model:  m,
		params: params,
		logger: metrics.NewAggregator(),
		run:    Run{Name: m.Name(), LogDir: "."},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the model being trained.
func (e *Experiment) Model() model.Model { return e.model }

// Params returns a copy of the parameters.
func (e *Experiment) Params() Params { return e.params }

// Logger returns the metric aggregator.
func (e *Experiment) Logger() *metrics.Aggregator { return e.logger }

// Run returns the run name and log directory.
func (e *Experiment) Run() Run { return e.run }

// CurrentDevice returns the device of the most recent batch, or
// tensor.NoDevice before the first step.
func (e *Experiment) CurrentDevice() tensor.Device { return e.currentDevice }

// Epoch returns the current epoch.
func (e *Experiment) Epoch() int { return e.epoch }

// SetEpoch is called by the training loop at the start of each epoch.
func (e *Experiment) SetEpoch(epoch int) { e.epoch = epoch }

// GlobalStep returns the number of training steps taken.
func (e *Experiment) GlobalStep() int { return e.step }

// Mode returns the training mode chosen by ConfigureOptimizers.
func (e *Experiment) Mode() TrainingMode { return e.mode }

// RetainGraph reports whether the backward pass of optimizerIdx must keep
// the graph for the next optimizer of the same batch. Only the first
// optimizer of an adversarial schedule retains, and only on request.
func (e *Experiment) RetainGraph(optimizerIdx int) bool {
	return e.mode == Adversarial &&
		optimizerIdx == 0 &&
		e.params.RetainFirstBackpass != nil && *e.params.RetainFirstBackpass
}

// evaluate runs the model forward and computes its losses.
func (e *Experiment) evaluate(batch data.Batch, args model.LossArgs) (model.LossResult, model.Scalar, error) {
	e.currentDevice = batch.Device()

	results, err := e.model.Forward(batch.Images, batch.Labels)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s forward", e.model.Name())
	}
	losses, err := e.model.LossFunction(results, args)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s loss", e.model.Name())
	}
	loss, ok := losses.Loss()
	if !ok {
		return nil, nil, errors.Wrapf(ErrMissingLoss, "model %s", e.model.Name())
	}
	return losses, loss, nil
}

// TrainingStep computes the training loss of batch for optimizerIdx.
//
// The configured kld_weight is passed to the loss unchanged. Every loss
// entry is logged under its own name with cross-replica reduction, and the
// "loss" entry is returned for the caller to differentiate.
func (e *Experiment) TrainingStep(ctx context.Context, batch data.Batch, batchIdx, optimizerIdx int) (model.Scalar, error) {
	losses, loss, err := e.evaluate(batch, model.LossArgs{
		KLDWeight:    e.params.KLDWeight,
		OptimizerIdx: optimizerIdx,
		BatchIdx:     batchIdx,
	})
	if err != nil {
		return nil, err
	}

	if err := e.logger.LogDict(ctx, losses.Values(), metrics.LogOptions{SyncDist: true, Step: e.step}); err != nil {
		return nil, errors.Wrap(err, "log training losses")
	}
	e.step++
	return loss, nil
}

// ValidationStep computes the validation loss of batch with the
// regularization weight fixed at 1 and logs each entry as "val_<key>".
func (e *Experiment) ValidationStep(ctx context.Context, batch data.Batch, batchIdx, optimizerIdx int) error {
	losses, _, err := e.evaluate(batch, model.LossArgs{
		KLDWeight:    1,
		OptimizerIdx: optimizerIdx,
		BatchIdx:     batchIdx,
	})
	if err != nil {
		return err
	}

	values := make(map[string]float64, len(losses))
	for k, s := range losses {
		values["val_"+k] = s.Item()
	}
	if err := e.logger.LogDict(ctx, values, metrics.LogOptions{SyncDist: true, Step: e.step}); err != nil {
		return errors.Wrap(err, "log validation losses")
	}
	return nil
}

// CheckpointPath returns <LogDir>/Model/state_dict_model.pt.
func (e *Experiment) CheckpointPath() string {
	return e.run.Path(CheckpointDir, CheckpointFile)
}

// SaveModel writes the model state dict to CheckpointPath, replacing the
// previous checkpoint.
func (e *Experiment) SaveModel() error {
	header := serialization.Header{
		ModelName: e.model.Name(),
		CheckpointMeta: &serialization.CheckpointMeta{
			RunName: e.run.Name,
			Epoch:   e.epoch,
			Hparams: e.params.Map(),
			Host:    e.host,
		},
	}
	if err := serialization.WriteFile(e.CheckpointPath(), e.model.StateDict(), header); err != nil {
		return errors.Wrap(err, "save checkpoint")
	}
	klog.V(1).InfoS("Saved checkpoint", "path", e.CheckpointPath(), "epoch", e.epoch)
	return nil
}

// OnValidationEnd saves the checkpoint and then exports sample images.
//
// The checkpoint is written first and does not depend on the sampler: a
// sampler error is returned only after the checkpoint is on disk.
func (e *Experiment) OnValidationEnd(ctx context.Context) error {
	if err := e.SaveModel(); err != nil {
		return err
	}
	if e.sampler == nil {
		klog.V(1).InfoS("No sampler configured, skipping sample images")
		return nil
	}
	if err := e.sampler.SampleImages(ctx, e.evalSrc, e.epoch); err != nil {
		return errors.Wrap(err, "sample images")
	}
	return nil
}
