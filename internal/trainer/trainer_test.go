package trainer_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/diagnostics"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/metrics"
	"github.com/born-ml/vae/internal/model"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/trainer"
	"github.com/born-ml/vae/internal/vae"
)

const patch = 8

func newVAE(t *testing.T) *vae.VanillaVAE {
	t.Helper()
	m, err := vae.New(vae.Config{PatchSize: patch, HiddenDim: 32, LatentDim: 4, Seed: 7}, tensor.CPU)
	require.NoError(t, err)
	return m
}

func newModule(t *testing.T, trainN, heldN, batchSize int) *data.Module {
	t.Helper()
	train, err := data.Synthetic(trainN, patch, 10, 1)
	require.NoError(t, err)
	held, err := data.Synthetic(heldN, patch, 10, 2)
	require.NoError(t, err)
	dm, err := data.NewModuleFromDatasets(train, held,
		data.Config{TrainBatchSize: batchSize, ValBatchSize: batchSize, PatchSize: patch}, 3, tensor.CPU)
	require.NoError(t, err)
	return dm
}

// brokenDataset returns a mis-shaped image at index bad.
type brokenDataset struct {
	data.Dataset
	bad int
}

func (d brokenDataset) At(i int) (*tensor.Tensor[float32], int32) {
	img, label := d.Dataset.At(i)
	if i == d.bad {
		img, _ = tensor.New[float32](tensor.Shape{1, 1, 2, 2}, tensor.CPU)
	}
	return img, label
}

func newBrokenModule(t *testing.T) *data.Module {
	t.Helper()
	train, err := data.Synthetic(16, patch, 10, 1)
	require.NoError(t, err)
	held, err := data.Synthetic(8, patch, 10, 2)
	require.NoError(t, err)
	dm, err := data.NewModuleFromDatasets(brokenDataset{Dataset: train, bad: 15}, held,
		data.Config{TrainBatchSize: 4, ValBatchSize: 4, PatchSize: patch}, 3, tensor.CPU)
	require.NoError(t, err)
	return dm
}

func TestNewRun(t *testing.T) {
	dir := t.TempDir()

	first, err := trainer.NewRun(dir, "VanillaVAE")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "VanillaVAE", "version_0"), first.LogDir)
	assert.Equal(t, "VanillaVAE", first.Name)
	for _, sub := range trainer.RunDirs {
		info, err := os.Stat(first.Path(sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	second, err := trainer.NewRun(dir, "VanillaVAE")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "VanillaVAE", "version_1"), second.LogDir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "VanillaVAE", "version_7"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "VanillaVAE", "version_x"), 0o755))
	next, err := trainer.NextVersion(filepath.Join(dir, "VanillaVAE"))
	require.NoError(t, err)
	assert.Equal(t, 8, next)

	next, err = trainer.NextVersion(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Zero(t, next)
}

func TestFit(t *testing.T) {
	run, err := trainer.NewRun(t.TempDir(), "VanillaVAE")
	require.NoError(t, err)
	dm := newModule(t, 64, 16, 16)
	m := newVAE(t)

	exp := experiment.New(m, experiment.Params{
		KLDWeight:      0.005,
		LR:             1e-3,
		SchedulerGamma: experiment.Ptr(0.5),
	},
		experiment.WithRun(run),
		experiment.WithEvalSource(dm.Test),
		experiment.WithDiagnostics(diagnostics.Sampler()))

	res, err := trainer.Fit(context.Background(), exp, dm, trainer.Config{MaxEpochs: 2})
	require.NoError(t, err)

	require.Len(t, res.Epochs, 2)
	for _, means := range res.Epochs {
		for _, key := range []string{"loss", "Reconstruction_Loss", "KLD", "val_loss", "val_Reconstruction_Loss", "val_KLD"} {
			assert.Contains(t, means, key)
		}
	}
	assert.Equal(t, 8, exp.GlobalStep())
	assert.Equal(t, 1, exp.Epoch())
	assert.Equal(t, tensor.CPU, exp.CurrentDevice())

	require.Len(t, res.Optimizers, 1)
	require.Len(t, res.Schedulers, 1)
	assert.InDelta(t, 1e-3*0.25, res.Optimizers[0].GetLR(), 1e-15)

	for epoch := range 2 {
		_, err := os.Stat(run.Path("Reconstructions", fmt.Sprintf("recons_VanillaVAE_Epoch_%d.png", epoch)))
		assert.NoError(t, err)
		_, err = os.Stat(run.Path("Samples", fmt.Sprintf("VanillaVAE_Epoch_%d.png", epoch)))
		assert.NoError(t, err)
	}

	sd, header, err := serialization.ReadFile(exp.CheckpointPath())
	require.NoError(t, err)
	assert.Equal(t, 1, header.CheckpointMeta.Epoch)
	restored := newVAE(t)
	require.NoError(t, restored.LoadStateDict(sd))
	assert.Equal(t, m.StateDict()["encoder.fc.weight"].Data(), restored.StateDict()["encoder.fc.weight"].Data())
}

func TestFitReducesReconstructionLoss(t *testing.T) {
	dm := newModule(t, 128, 32, 16)
	exp := experiment.New(newVAE(t), experiment.Params{KLDWeight: 0.001, LR: 5e-3},
		experiment.WithRun(experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}))

	res, err := trainer.Fit(context.Background(), exp, dm, trainer.Config{MaxEpochs: 5})
	require.NoError(t, err)
	require.Len(t, res.Epochs, 5)
	assert.Less(t, res.Epochs[4]["Reconstruction_Loss"], res.Epochs[0]["Reconstruction_Loss"])
}

// call is one backward pass observed by scriptedModel.
type call struct {
	batch, optimizer int
	retain           bool
}

// scriptedModel records the schedule the trainer drives it through.
type scriptedModel struct {
	modules  nn.Container
	calls    []call
	valCalls []model.LossArgs
	dropLoss bool
}

func newScriptedModel() *scriptedModel {
	rng := rand.New(rand.NewPCG(1, 1))
	return &scriptedModel{modules: nn.Container{
		{Name: "generator", Module: nn.NewLinear(2, 2, rng, tensor.CPU)},
		{Name: "discriminator", Module: nn.NewLinear(2, 1, rng, tensor.CPU)},
	}}
}

type scriptedLoss struct {
	m    *scriptedModel
	args model.LossArgs
}

func (l scriptedLoss) Item() float64 { return 1 }

func (l scriptedLoss) Backward(retain bool) error {
	l.m.calls = append(l.m.calls, call{batch: l.args.BatchIdx, optimizer: l.args.OptimizerIdx, retain: retain})
	for _, p := range l.m.Parameters() {
		g := make([]float32, p.Tensor().NumElements())
		for i := range g {
			g[i] = 1
		}
		p.AccumulateGrad(g)
	}
	return nil
}

func (s *scriptedModel) Name() string                                  { return "Scripted" }
func (s *scriptedModel) Parameters() []*nn.Parameter                   { return s.modules.Parameters() }
func (s *scriptedModel) StateDict() map[string]*tensor.Tensor[float32] { return s.modules.StateDict() }
func (s *scriptedModel) LoadStateDict(sd map[string]*tensor.Tensor[float32]) error {
	return s.modules.LoadStateDict(sd)
}
func (s *scriptedModel) Submodule(name string) (nn.Module, bool) { return s.modules.Child(name) }

func (s *scriptedModel) Forward(images *tensor.Tensor[float32], _ *tensor.Tensor[int32]) (model.Results, error) {
	return model.Results{images}, nil
}

func (s *scriptedModel) LossFunction(_ model.Results, args model.LossArgs) (model.LossResult, error) {
	if args.KLDWeight == 1 {
		s.valCalls = append(s.valCalls, args)
	}
	res := model.LossResult{"KLD": model.Value(0.5)}
	if !s.dropLoss {
		res[model.LossKey] = scriptedLoss{m: s, args: args}
	}
	return res, nil
}

func (s *scriptedModel) Encode(images *tensor.Tensor[float32]) ([]*tensor.Tensor[float32], error) {
	return []*tensor.Tensor[float32]{images}, nil
}
func (s *scriptedModel) Decode(z *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	return z, nil
}
func (s *scriptedModel) Sample(int, tensor.Device, *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	return nil, model.ErrSamplingUnsupported
}
func (s *scriptedModel) Generate(images *tensor.Tensor[float32], _ *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	return images, nil
}

func TestFitAdversarialSchedule(t *testing.T) {
	sm := newScriptedModel()
	exp := experiment.New(sm, experiment.Params{
		KLDWeight:           0.1,
		LR:                  1e-3,
		LR2:                 experiment.Ptr(1e-4),
		Submodel:            experiment.Ptr("discriminator"),
		SchedulerGamma:      experiment.Ptr(0.9),
		SchedulerGamma2:     experiment.Ptr(0.5),
		RetainFirstBackpass: experiment.Ptr(true),
	})
	dm := newModule(t, 8, 4, 4)

	// Rank 1 skips the checkpoint so nothing is written to disk.
	res, err := trainer.Fit(context.Background(), exp, dm, trainer.Config{MaxEpochs: 1, Rank: 1})
	require.NoError(t, err)

	assert.Equal(t, experiment.Adversarial, exp.Mode())
	assert.Equal(t, []call{
		{batch: 0, optimizer: 0, retain: true},
		{batch: 0, optimizer: 1, retain: false},
		{batch: 1, optimizer: 0, retain: true},
		{batch: 1, optimizer: 1, retain: false},
	}, sm.calls)
	require.Len(t, sm.valCalls, 1)
	assert.Equal(t, 0, sm.valCalls[0].OptimizerIdx)

	require.Len(t, res.Schedulers, 2)
	assert.InDelta(t, 1e-3*0.9, res.Optimizers[0].GetLR(), 1e-15)
	assert.InDelta(t, 1e-4*0.5, res.Optimizers[1].GetLR(), 1e-15)
	assert.Contains(t, res.Epochs[0], "val_KLD")
}

func TestFitMissingLoss(t *testing.T) {
	sm := newScriptedModel()
	sm.dropLoss = true
	exp := experiment.New(sm, experiment.Params{LR: 1e-3})

	_, err := trainer.Fit(context.Background(), exp, newModule(t, 4, 4, 4), trainer.Config{MaxEpochs: 1, Rank: 1})
	assert.ErrorIs(t, err, experiment.ErrMissingLoss)
}

func TestFitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exp := experiment.New(newScriptedModel(), experiment.Params{LR: 1e-3})

	_, err := trainer.Fit(ctx, exp, newModule(t, 4, 4, 4), trainer.Config{MaxEpochs: 3, Rank: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitDataError(t *testing.T) {
	exp := experiment.New(newVAE(t), experiment.Params{KLDWeight: 0.005, LR: 1e-3},
		experiment.WithRun(experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}))

	_, err := trainer.Fit(context.Background(), exp, newBrokenModule(t), trainer.Config{MaxEpochs: 1, Rank: 1})
	require.Error(t, err)
	assert.ErrorContains(t, err, "training data")
	assert.ErrorContains(t, err, "collate")
}

func TestFitReplicas(t *testing.T) {
	runs := []experiment.Run{
		{Name: "VanillaVAE", LogDir: t.TempDir()},
		{Name: "VanillaVAE", LogDir: t.TempDir()},
	}
	sinks := make([]*metrics.BoltSink, 2)

	build := func(rank int, reducer metrics.Reducer) (trainer.Replica, error) {
		sink, err := metrics.OpenBoltSink(filepath.Join(runs[rank].LogDir, "metrics.db"), "VanillaVAE")
		if err != nil {
			return trainer.Replica{}, err
		}
		t.Cleanup(func() { sink.Close() })
		sinks[rank] = sink

		logger := metrics.NewAggregator(metrics.WithReducer(reducer), metrics.WithSink(sink))
		exp := experiment.New(newVAE(t), experiment.Params{KLDWeight: 0.005, LR: 1e-3},
			experiment.WithRun(runs[rank]), experiment.WithLogger(logger))
		return trainer.Replica{Experiment: exp, Data: newModule(t, 32, 16, 16)}, nil
	}

	results, err := trainer.FitReplicas(context.Background(), 2, trainer.Config{MaxEpochs: 2}, build)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Epochs, results[1].Epochs)

	_, err = os.Stat(filepath.Join(runs[0].LogDir, experiment.CheckpointDir, experiment.CheckpointFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(runs[1].LogDir, experiment.CheckpointDir, experiment.CheckpointFile))
	assert.True(t, os.IsNotExist(err))

	history, err := sinks[0].History("val_loss")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFitReplicasDataError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	build := func(rank int, reducer metrics.Reducer) (trainer.Replica, error) {
		logger := metrics.NewAggregator(metrics.WithReducer(reducer))
		exp := experiment.New(newVAE(t), experiment.Params{KLDWeight: 0.005, LR: 1e-3},
			experiment.WithRun(experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}), experiment.WithLogger(logger))
		dm := newModule(t, 16, 8, 4)
		if rank == 1 {
			dm = newBrokenModule(t)
		}
		return trainer.Replica{Experiment: exp, Data: dm}, nil
	}

	_, err := trainer.FitReplicas(ctx, 2, trainer.Config{MaxEpochs: 2}, build)
	require.Error(t, err)
	assert.ErrorContains(t, err, "replica 1")
	assert.ErrorContains(t, err, "collate")
	assert.NoError(t, ctx.Err())
}

func TestFitReplicasBuildError(t *testing.T) {
	_, err := trainer.FitReplicas(context.Background(), 2, trainer.Config{MaxEpochs: 1},
		func(int, metrics.Reducer) (trainer.Replica, error) { return trainer.Replica{}, os.ErrPermission })
	assert.ErrorIs(t, err, os.ErrPermission)

	_, err = trainer.FitReplicas(context.Background(), 0, trainer.Config{MaxEpochs: 1}, nil)
	assert.Error(t, err)
}
