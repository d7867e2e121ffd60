package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/device"
	"github.com/born-ml/vae/internal/diagnostics"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/manifold"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vae"
)

// staticEnv pins the diagnostics engine to one device and output directory.
type staticEnv struct {
	dev tensor.Device
	run experiment.Run
}

func (e staticEnv) CurrentDevice() tensor.Device { return e.dev }
func (e staticEnv) Run() experiment.Run          { return e.run }

// diagnoseOptions holds the diagnose subcommand flags.
type diagnoseOptions struct {
	config     string
	checkpoint string
	out        string
	steps      int
	maxPoints  int
	perplexity float64
}

func diagnoseFlags(errorHandling flag.ErrorHandling) (*flag.FlagSet, *diagnoseOptions) {
	opts := &diagnoseOptions{}
	fs := flag.NewFlagSet("diagnose", errorHandling)
	fs.StringVar(&opts.config, "config", "configs/vae.yaml", "Experiment file the checkpoint was trained with")
	fs.StringVar(&opts.checkpoint, "checkpoint", "", "Checkpoint to load (required)")
	fs.StringVar(&opts.out, "out", "", "Output directory (default: the checkpoint's run directory)")
	fs.IntVar(&opts.steps, "samples", diagnostics.DefaultTraversalSteps, "Sweep steps per latent axis in each_dim_random")
	fs.IntVar(&opts.maxPoints, "max-points", diagnostics.DefaultMaxLatentPoints, "Latent points projected by t-SNE (<= 0: all)")
	fs.Float64Var(&opts.perplexity, "perplexity", 30, "t-SNE perplexity")
	return fs, opts
}

func runDiagnose(ctx context.Context, args []string) error {
	fs, opts := diagnoseFlags(flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.checkpoint == "" {
		return errors.New("-checkpoint is required")
	}

	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	dev, err := device.Select(cfg.Trainer.Device)
	if err != nil {
		return err
	}

	sd, header, err := serialization.ReadFile(opts.checkpoint)
	if err != nil {
		return err
	}
	m, err := vae.New(cfg.Model, dev)
	if err != nil {
		return err
	}
	if header.ModelName != "" && header.ModelName != m.Name() {
		klog.InfoS("Checkpoint was written by a different model name", "checkpoint", header.ModelName, "model", m.Name())
	}
	if err := m.LoadStateDict(sd); err != nil {
		return errors.Wrapf(err, "load %s", opts.checkpoint)
	}

	// <run>/Model/state_dict_model.pt -> <run>
	dir := opts.out
	if dir == "" {
		dir = filepath.Dir(filepath.Dir(must.M1(filepath.Abs(opts.checkpoint))))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dm, err := data.NewModule(cfg.Data, cfg.Exp.Seed(), dev)
	if err != nil {
		return err
	}
	tsne := manifold.DefaultConfig()
	tsne.Perplexity = opts.perplexity
	eng := diagnostics.New(m, staticEnv{dev: dev, run: experiment.Run{Name: m.Name(), LogDir: dir}},
		diagnostics.WithSeed(cfg.Exp.Seed()), diagnostics.WithTSNE(tsne),
		diagnostics.WithMaxPoints(opts.maxPoints))

	latent := m.LatentDim()
	var written []string
	path, err := eng.VisualizeEachDimRandom(latent, opts.steps)
	if err != nil {
		return errors.Wrap(err, "random traversal")
	}
	written = append(written, path)

	digits, err := oneOfEachClass(dm.Val.Dataset(), dev)
	if err != nil {
		return err
	}
	paths, err := eng.VisualizeEachDimAllNumbers(digits.Images, latent)
	if err != nil {
		return errors.Wrap(err, "per-class traversal")
	}
	written = append(written, paths...)

	paths, err = eng.ReconsAndGen(dm.Val.Dataset(), latent)
	if err != nil {
		return errors.Wrap(err, "reconstruction figure")
	}
	written = append(written, paths...)

	path, err = eng.VisualizeLatentSpace(ctx, dm.Val)
	if err != nil {
		return errors.Wrap(err, "latent space")
	}
	written = append(written, path)

	for _, p := range written {
		fmt.Println(p)
	}
	return nil
}

// oneOfEachClass collates the first example of every label in ds, ordered by label.
func oneOfEachClass(ds data.Dataset, dev tensor.Device) (data.Batch, error) {
	first := make(map[int32]int)
	for i := range ds.Len() {
		_, label := ds.At(i)
		if _, ok := first[label]; !ok {
			first[label] = i
		}
	}
	if len(first) == 0 {
		return data.Batch{}, diagnostics.ErrEmptySource
	}

	labels := make([]int32, 0, len(first))
	for l := range first {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	idx := make([]int, len(labels))
	for i, l := range labels {
		idx[i] = first[l]
	}
	return data.Collate(ds, idx, dev)
}

func runDevices() {
	for _, info := range device.List() {
		fmt.Printf("%-8s %s\n", info.Device, info.Name)
	}
}
