// Package trainer drives an Experiment through its epochs.
//
// Each epoch runs every training batch once per optimizer, steps the
// schedulers, runs validation and finishes with the experiment's
// end-of-validation hook (checkpoint and sample images).
package trainer

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/metrics"
	"github.com/born-ml/vae/internal/optim"
)

// Config controls Fit.
type Config struct {
	MaxEpochs int       // Epochs to run
	Rank      int       // Replica rank; only rank 0 writes checkpoints and images
	Progress  io.Writer // Progress bar output, nil disables the bars
}

// Result summarizes a finished Fit.
type Result struct {
	Epochs     []map[string]float64 // Per-epoch means of every logged value
	Optimizers []optim.Optimizer
	Schedulers []*optim.ExponentialLR
}

// Fit trains exp on dm for cfg.MaxEpochs epochs.
//
// For each training batch and each optimizer i, in order: all gradients are
// cleared, the training loss for i is computed and differentiated (keeping
// the graph when the experiment asks for it), and optimizer i steps.
func Fit(ctx context.Context, exp *experiment.Experiment, dm *data.Module, cfg Config) (*Result, error) {
	optCfg, err := exp.ConfigureOptimizers()
	if err != nil {
		return nil, errors.Wrap(err, "configure optimizers")
	}
	res := &Result{Optimizers: optCfg.Optimizers, Schedulers: optCfg.Schedulers}

	progress := mpb.NewWithContext(ctx, mpb.WithOutput(cfg.Progress), mpb.WithWidth(80))
	defer progress.Wait()

	klog.InfoS("Starting training",
		"run", exp.Run().LogDir, "epochs", cfg.MaxEpochs, "rank", cfg.Rank,
		"optimizers", len(optCfg.Optimizers), "mode", exp.Mode())

	for epoch := range cfg.MaxEpochs {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "epoch %d", epoch)
		}
		exp.SetEpoch(epoch)

		bar, err := progress.Add(int64(dm.Train.NumBatches()), mpb.BarStyle().Build(),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("Epoch %d/%d ", epoch+1, cfg.MaxEpochs)),
				decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
			),
		)
		if err != nil {
			// The container only refuses bars once ctx is done.
			return res, errors.Wrapf(cmp.Or(ctx.Err(), err), "epoch %d", epoch)
		}
		if err := trainEpoch(ctx, exp, dm.Train, optCfg.Optimizers, bar); err != nil {
			bar.Abort(false)
			return res, errors.Wrapf(err, "epoch %d", epoch)
		}
		bar.SetTotal(-1, true)

		for _, s := range optCfg.Schedulers {
			s.Step()
		}

		if err := validate(ctx, exp, dm.Val); err != nil {
			return res, errors.Wrapf(err, "epoch %d validation", epoch)
		}
		if cfg.Rank == 0 {
			if err := exp.OnValidationEnd(ctx); err != nil {
				return res, errors.Wrapf(err, "epoch %d", epoch)
			}
		}

		means := exp.Logger().EndEpoch()
		res.Epochs = append(res.Epochs, means)
		klog.InfoS("Epoch complete", "epoch", epoch, "rank", cfg.Rank,
			"loss", means["loss"], "val_loss", means["val_loss"], "lr", optCfg.Optimizers[0].GetLR())
	}
	return res, nil
}

func trainEpoch(ctx context.Context, exp *experiment.Experiment, src data.Source, opts []optim.Optimizer, bar *mpb.Bar) error {
	batchIdx := 0
	for batch := range src.Batches() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, opt := range opts {
			for _, o := range opts {
				o.ZeroGrad()
			}
			loss, err := exp.TrainingStep(ctx, batch, batchIdx, i)
			if err != nil {
				return err
			}
			if err := loss.Backward(exp.RetainGraph(i)); err != nil {
				return errors.Wrapf(err, "backward batch %d optimizer %d", batchIdx, i)
			}
			opt.Step()
		}
		batchIdx++
		bar.Increment()
	}
	return errors.Wrap(data.Err(src), "training data")
}

func validate(ctx context.Context, exp *experiment.Experiment, src data.Source) error {
	batchIdx := 0
	for batch := range src.Batches() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exp.ValidationStep(ctx, batch, batchIdx, 0); err != nil {
			return err
		}
		batchIdx++
	}
	return errors.Wrap(data.Err(src), "validation data")
}

// Replica is one data-parallel worker built by FitReplicas.
type Replica struct {
	Experiment *experiment.Experiment
	Data       *data.Module
}

// BuildFunc creates the replica of rank. Its experiment must log through an
// aggregator using reducer so that synchronized values agree across ranks.
type BuildFunc func(rank int, reducer metrics.Reducer) (Replica, error)

// FitReplicas runs n replicas concurrently, one Fit each, sharing a metric
// reduction group. The first failure cancels the others.
func FitReplicas(ctx context.Context, n int, cfg Config, build BuildFunc) ([]*Result, error) {
	group, err := metrics.NewGroup(n)
	if err != nil {
		return nil, err
	}
	replicas := make([]Replica, n)
	for rank := range n {
		if replicas[rank], err = build(rank, group); err != nil {
			return nil, errors.Wrapf(err, "build replica %d", rank)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for rank, r := range replicas {
		rankCfg := cfg
		rankCfg.Rank = rank
		if rank != 0 {
			rankCfg.Progress = nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[rank], errs[rank] = Fit(ctx, r.Experiment, r.Data, rankCfg)
			if errs[rank] != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return results, errors.Wrapf(err, "replica %d", rank)
		}
	}
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
