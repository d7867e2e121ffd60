package diagnostics_test

import (
	"context"
	"image"
	"image/png"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/diagnostics"
	"github.com/born-ml/vae/internal/experiment"
	"github.com/born-ml/vae/internal/manifold"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vae"
)

const (
	patch  = 8
	latent = 3
)

type env struct {
	device tensor.Device
	run    experiment.Run
}

func (e env) CurrentDevice() tensor.Device { return e.device }
func (e env) Run() experiment.Run          { return e.run }

// deviceRecorder remembers the device Generate and Sample were called with.
type deviceRecorder struct {
	*vae.VanillaVAE
	generateDevice tensor.Device
	sampleDevice   tensor.Device
}

func (d *deviceRecorder) Generate(images *tensor.Tensor[float32], labels *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	d.generateDevice = images.Device()
	return d.VanillaVAE.Generate(images, labels)
}

func (d *deviceRecorder) Sample(count int, device tensor.Device, labels *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	d.sampleDevice = device
	return d.VanillaVAE.Sample(count, device, labels)
}

type emptySource struct{}

func (emptySource) Batches() iter.Seq[data.Batch] {
	return func(func(data.Batch) bool) {}
}

func newModel(t *testing.T, disableSampling bool) *vae.VanillaVAE {
	t.Helper()
	m, err := vae.New(vae.Config{
		Name:            "VanillaVAE",
		PatchSize:       patch,
		HiddenDim:       16,
		LatentDim:       latent,
		Seed:            3,
		DisableSampling: disableSampling,
	}, tensor.CPU)
	require.NoError(t, err)
	return m
}

func newLoader(t *testing.T, n, batchSize int) *data.Loader {
	t.Helper()
	ds, err := data.Synthetic(n, patch, 10, 11)
	require.NoError(t, err)
	l, err := data.NewLoader(ds, data.LoaderConfig{BatchSize: batchSize})
	require.NoError(t, err)
	return l
}

func pngBounds(t *testing.T, path string) image.Rectangle {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img.Bounds()
}

// side returns the grid extent of count cells of patch pixels with 2px padding.
func side(count int) int { return count*(patch+2) + 2 }

func TestSampleImages(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	m := &deviceRecorder{VanillaVAE: newModel(t, false)}
	engine := diagnostics.New(m, env{device: tensor.Metal, run: run})

	require.NoError(t, engine.SampleImages(context.Background(), newLoader(t, 30, 20), 3))

	recons := filepath.Join(run.LogDir, "Reconstructions", "recons_VanillaVAE_Epoch_3.png")
	samples := filepath.Join(run.LogDir, "Samples", "VanillaVAE_Epoch_3.png")
	assert.Equal(t, image.Rect(0, 0, side(12), side(2)), pngBounds(t, recons))
	assert.Equal(t, image.Rect(0, 0, side(12), side(12)), pngBounds(t, samples))

	assert.Equal(t, tensor.Metal, m.generateDevice)
	assert.Equal(t, tensor.Metal, m.sampleDevice)
}

func TestSampleImagesBeforeFirstStepUsesBatchDevice(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	m := &deviceRecorder{VanillaVAE: newModel(t, false)}
	engine := diagnostics.New(m, env{device: tensor.NoDevice, run: run})

	require.NoError(t, engine.SampleImages(context.Background(), newLoader(t, 5, 5), 0))
	assert.Equal(t, tensor.CPU, m.generateDevice)
	assert.Equal(t, tensor.CPU, m.sampleDevice)
}

func TestSampleImagesSamplingUnsupported(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, true), env{device: tensor.CPU, run: run})

	require.NoError(t, engine.SampleImages(context.Background(), newLoader(t, 10, 10), 0))

	_, err := os.Stat(filepath.Join(run.LogDir, "Reconstructions", "recons_VanillaVAE_Epoch_0.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(run.LogDir, "Samples", "VanillaVAE_Epoch_0.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestSampleImagesEmptySource(t *testing.T) {
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: experiment.Run{LogDir: t.TempDir()}})

	assert.ErrorIs(t, engine.SampleImages(context.Background(), nil, 0), diagnostics.ErrEmptySource)
	assert.ErrorIs(t, engine.SampleImages(context.Background(), emptySource{}, 0), diagnostics.ErrEmptySource)
}

func TestSamplerFactory(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	exp := experiment.New(newModel(t, false), experiment.Params{LR: 1e-3},
		experiment.WithRun(run),
		experiment.WithEvalSource(newLoader(t, 12, 12)),
		experiment.WithDiagnostics(diagnostics.Sampler()))

	require.NoError(t, exp.OnValidationEnd(context.Background()))
	_, err := os.Stat(filepath.Join(run.LogDir, "Samples", "VanillaVAE_Epoch_0.png"))
	assert.NoError(t, err)
	_, err = os.Stat(exp.CheckpointPath())
	assert.NoError(t, err)
}

func TestVisualizeEachDimRandom(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: run}, diagnostics.WithSeed(5))

	path, err := engine.VisualizeEachDimRandom(latent, 5)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(run.LogDir, "Diagnostics", "each_dim_random.png"), path)
	assert.Equal(t, image.Rect(0, 0, side(5), side(latent)), pngBounds(t, path))

	path, err = engine.VisualizeEachDimRandom(latent, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, side(20), side(latent)), pngBounds(t, path))

	_, err = engine.VisualizeEachDimRandom(0, 5)
	assert.Error(t, err)
}

func TestVisualizeEachDimAllNumbers(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: run})
	batch, ok := data.First(newLoader(t, 4, 4))
	require.True(t, ok)

	paths, err := engine.VisualizeEachDimAllNumbers(batch.Images, latent)
	require.NoError(t, err)
	require.Len(t, paths, latent)
	for i, path := range paths {
		assert.Equal(t, filepath.Join(run.LogDir, "Diagnostics", "each_dim_all_numbers_"+string(rune('1'+i))+".png"), path)
		assert.Equal(t, image.Rect(0, 0, side(20), side(4)), pngBounds(t, path))
	}

	_, err = engine.VisualizeEachDimAllNumbers(batch.Images, latent+1)
	assert.Error(t, err)
}

func TestReconsAndGen(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: run})
	ds, err := data.Synthetic(3, patch, 10, 1)
	require.NoError(t, err)

	paths, err := engine.ReconsAndGen(ds, latent)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, path := range paths {
		assert.Equal(t, image.Rect(0, 0, side(2), side(10)), pngBounds(t, path))
	}

	empty, err := data.Synthetic(0, patch, 10, 1)
	require.NoError(t, err)
	_, err = engine.ReconsAndGen(empty, latent)
	assert.ErrorIs(t, err, diagnostics.ErrEmptySource)
}

func TestEncodeAll(t *testing.T) {
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: experiment.Run{LogDir: t.TempDir()}})

	points, err := engine.EncodeAll(context.Background(), newLoader(t, 25, 10))
	require.NoError(t, err)
	rows, cols := points.Codes.Dims()
	assert.Equal(t, 25, rows)
	assert.Equal(t, latent, cols)
	assert.Len(t, points.Labels, 25)

	_, err = engine.EncodeAll(context.Background(), emptySource{})
	assert.ErrorIs(t, err, diagnostics.ErrEmptySource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.EncodeAll(ctx, newLoader(t, 5, 5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVisualizeLatentSpace(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: run},
		diagnostics.WithTSNE(manifold.Config{Perplexity: 5, Iterations: 50}))

	path, err := engine.VisualizeLatentSpace(context.Background(), newLoader(t, 40, 16))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(run.LogDir, "Diagnostics", "latent_space.png"), path)
	assert.False(t, pngBounds(t, path).Empty())
}

func TestVisualizeLatentSpaceCapsPoints(t *testing.T) {
	run := experiment.Run{Name: "VanillaVAE", LogDir: t.TempDir()}
	engine := diagnostics.New(newModel(t, false), env{device: tensor.CPU, run: run},
		diagnostics.WithTSNE(manifold.Config{Perplexity: 3, Iterations: 20}),
		diagnostics.WithMaxPoints(12))

	path, err := engine.VisualizeLatentSpace(context.Background(), newLoader(t, 40, 16))
	require.NoError(t, err)
	assert.False(t, pngBounds(t, path).Empty())
}

func TestLatentPointsSubsample(t *testing.T) {
	const n = 50
	codes := mat.NewDense(n, 2, nil)
	labels := make([]int32, n)
	for i := range n {
		codes.Set(i, 0, float64(i))
		codes.Set(i, 1, float64(-i))
		labels[i] = int32(i)
	}
	points := diagnostics.LatentPoints{Codes: codes, Labels: labels}
	rng := rand.New(rand.NewPCG(1, 2))

	sub := points.Subsample(rng, 20)
	require.Equal(t, 20, sub.Len())
	rows, cols := sub.Codes.Dims()
	assert.Equal(t, 20, rows)
	assert.Equal(t, 2, cols)
	assert.True(t, slices.IsSorted(sub.Labels))
	assert.Len(t, slices.Compact(slices.Clone(sub.Labels)), 20)
	for row, label := range sub.Labels {
		// Rows still carry their own label.
		assert.Equal(t, float64(label), sub.Codes.At(row, 0))
		assert.Equal(t, -float64(label), sub.Codes.At(row, 1))
	}

	assert.Same(t, codes, points.Subsample(rng, n).Codes)
	assert.Same(t, codes, points.Subsample(rng, 0).Codes)
}
