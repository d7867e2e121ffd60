package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/device"
	"github.com/born-ml/vae/internal/diagnostics"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/metrics"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/trainer"
	"github.com/born-ml/vae/internal/vae"
)

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", "configs/vae.yaml", "Experiment file")
	progress := fs.Bool("progress", true, "Show per-epoch progress bars")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	dev, err := device.Select(cfg.Trainer.Device)
	if err != nil {
		return err
	}

	run, err := trainer.NewRun(cfg.Logging.SaveDir, cfg.Logging.Name)
	if err != nil {
		return err
	}
	if err := config.WriteHparams(run.Path("hparams.yaml"), cfg); err != nil {
		return err
	}
	sink, err := metrics.OpenBoltSink(run.Path("metrics.db"), run.Name)
	if err != nil {
		return err
	}
	defer sink.Close()

	klog.InfoS("Run created", "dir", run.LogDir, "device", dev, "replicas", cfg.Trainer.Replicas)

	var out io.Writer
	if *progress {
		out = os.Stderr
	}
	tc := trainer.Config{MaxEpochs: cfg.Trainer.MaxEpochs, Progress: out}
	build := replicaBuilder(cfg, run, dev, sink)

	if cfg.Trainer.Replicas <= 1 {
		r, err := build(0, metrics.Local{})
		if err != nil {
			return err
		}
		_, err = trainer.Fit(ctx, r.Experiment, r.Data, tc)
		return err
	}
	_, err = trainer.FitReplicas(ctx, cfg.Trainer.Replicas, tc, build)
	return err
}

// replicaBuilder wires one model, data module and experiment per rank. Only
// rank 0 writes metrics to the run database.
func replicaBuilder(cfg *config.Config, run experiment.Run, dev tensor.Device, sink metrics.Sink) trainer.BuildFunc {
	seed := cfg.Exp.Seed()
	host := device.HostInfo()

	return func(rank int, reducer metrics.Reducer) (trainer.Replica, error) {
		mcfg := cfg.Model
		if mcfg.Seed == 0 {
			mcfg.Seed = seed
		}
		m, err := vae.New(mcfg, dev)
		if err != nil {
			return trainer.Replica{}, errors.Wrap(err, "build model")
		}
		dm, err := data.NewModule(cfg.Data, seed+uint64(rank), dev)
		if err != nil {
			return trainer.Replica{}, errors.Wrap(err, "load data")
		}

		opts := []metrics.Option{metrics.WithReducer(reducer)}
		if rank == 0 {
			opts = append(opts, metrics.WithSink(sink), metrics.WithSink(metrics.KlogSink{}))
		}
		exp := experiment.New(m, cfg.Exp,
			experiment.WithRun(run),
			experiment.WithLogger(metrics.NewAggregator(opts...)),
			experiment.WithEvalSource(dm.Test),
			experiment.WithDiagnostics(diagnostics.Sampler(diagnostics.WithSeed(seed))),
			experiment.WithHostInfo(host),
		)
		return trainer.Replica{Experiment: exp, Data: dm}, nil
	}
}
