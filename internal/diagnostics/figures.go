package diagnostics

import (
	"fmt"
	"path/filepath"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vision"
)

// Traversal settings.
const (
	DefaultTraversalSteps = 20
	traversalMin          = -2
	traversalMax          = 2
	pairCount             = 10
	generatedCount        = 20
)

// figure writes images as a grid of columns under <LogDir>/Diagnostics.
func (e *Engine) figure(name string, images *tensor.Tensor[float32], columns int) (string, error) {
	path := e.env.Run().Path(FiguresDir, name)
	err := vision.SaveGrid(path, images, vision.GridOptions{Columns: columns, Padding: vision.DefaultPadding})
	if err != nil {
		return "", fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// traverse decodes, for every base code, steps copies with axis swept over
// [-2, 2]. Rows of the result follow the base codes.
func (e *Engine) traverse(base [][]float32, axis, steps int, dev tensor.Device) (*tensor.Tensor[float32], error) {
	values := tensor.Linspace(traversalMin, traversalMax, steps)
	latent := len(base[0])

	z := make([]float32, 0, len(base)*steps*latent)
	for _, code := range base {
		for _, v := range values {
			row := append([]float32(nil), code...)
			row[axis] = v
			z = append(z, row...)
		}
	}
	zt, err := tensor.FromSlice(z, tensor.Shape{len(base) * steps, latent}, dev)
	if err != nil {
		return nil, err
	}
	return e.model.Decode(zt)
}

// VisualizeEachDimRandom draws one latent point z ~ N(0, I) and, for each
// axis, decodes numSamples copies of z with that axis swept over [-2, 2].
// The figure has one row per axis.
func (e *Engine) VisualizeEachDimRandom(latentDim, numSamples int) (string, error) {
	if latentDim <= 0 {
		return "", fmt.Errorf("latent dimension must be positive, got %d", latentDim)
	}
	if numSamples <= 0 {
		numSamples = DefaultTraversalSteps
	}
	dev := e.device(tensor.CPU)

	base := make([]float32, latentDim)
	for i := range base {
		base[i] = float32(e.rng.NormFloat64())
	}

	rows := make([]*tensor.Tensor[float32], latentDim)
	for axis := range latentDim {
		decoded, err := e.traverse([][]float32{base}, axis, numSamples, dev)
		if err != nil {
			return "", fmt.Errorf("decode axis %d: %w", axis, err)
		}
		rows[axis] = decoded
	}
	images, err := tensor.Stack(rows)
	if err != nil {
		return "", err
	}
	return e.figure("each_dim_random.png", images, numSamples)
}

// VisualizeEachDimAllNumbers encodes every image of a [N,C,H,W] batch and,
// for each latent axis, writes a figure whose rows sweep that axis of one
// encoded example over [-2, 2]. Figures are numbered from 1.
func (e *Engine) VisualizeEachDimAllNumbers(images *tensor.Tensor[float32], latentDim int) ([]string, error) {
	if latentDim <= 0 {
		return nil, fmt.Errorf("latent dimension must be positive, got %d", latentDim)
	}
	dev := e.device(images.Device())

	encoded, err := e.model.Encode(images.To(dev))
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	mu := encoded[0]
	shape := mu.Shape()
	if len(shape) != 2 || shape[1] != latentDim {
		return nil, fmt.Errorf("encoded shape %v does not match latent dimension %d", shape, latentDim)
	}
	codes := make([][]float32, shape[0])
	for i := range codes {
		codes[i] = mu.Data()[i*latentDim : (i+1)*latentDim]
	}

	paths := make([]string, 0, latentDim)
	for axis := range latentDim {
		decoded, err := e.traverse(codes, axis, DefaultTraversalSteps, dev)
		if err != nil {
			return paths, fmt.Errorf("decode axis %d: %w", axis, err)
		}
		path, err := e.figure(fmt.Sprintf("each_dim_all_numbers_%d.png", axis+1), decoded, DefaultTraversalSteps)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ReconsAndGen writes two 10×2 figures: ten random examples of ds beside
// their reconstructions, and twenty decodings of random latent points.
func (e *Engine) ReconsAndGen(ds data.Dataset, latentDim int) ([]string, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptySource
	}
	if latentDim <= 0 {
		return nil, fmt.Errorf("latent dimension must be positive, got %d", latentDim)
	}
	dev := e.device(tensor.CPU)

	idx := make([]int, pairCount)
	for i := range idx {
		idx[i] = e.rng.IntN(ds.Len())
	}
	batch, err := data.Collate(ds, idx, dev)
	if err != nil {
		return nil, err
	}
	recons, err := e.model.Generate(batch.Images, batch.Labels)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	pairs := make([]*tensor.Tensor[float32], 0, 2*pairCount)
	for i := range pairCount {
		pairs = append(pairs, batch.Images.Index(i), recons.Index(i))
	}
	grid, err := tensor.Stack(pairs)
	if err != nil {
		return nil, err
	}
	reconsPath, err := e.figure("reconstruction.png", grid, 2)
	if err != nil {
		return nil, err
	}

	z := tensor.Randn(tensor.Shape{generatedCount, latentDim}, e.rng, dev)
	generated, err := e.model.Decode(z)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	genPath, err := e.figure("generation.png", generated, 2)
	if err != nil {
		return nil, err
	}
	return []string{reconsPath, genPath}, nil
}
