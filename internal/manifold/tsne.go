// Package manifold embeds high-dimensional points in two dimensions.
//
// TSNE is exact t-SNE: Gaussian input affinities calibrated per point to a
// target perplexity, Student-t output affinities, and gradient descent with
// momentum, per-coordinate gains and early exaggeration. The embedding is
// initialised from the top principal components so that runs with the same
// input are reproducible.
package manifold

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/parallel"
)

// Init selects how the embedding is initialised.
type Init int

const (
	InitPCA Init = iota
	InitRandom
)

// Config holds t-SNE hyperparameters. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	Components        int     // Output dimensions (default 2)
	Perplexity        float64 // Effective neighbourhood size (default 30)
	Iterations        int     // Gradient steps (default 1000)
	LearningRate      float64 // 0 selects max(n/Exaggeration/4, 50)
	Exaggeration      float64 // Early exaggeration factor (default 12)
	ExaggerationIters int     // Steps with exaggeration and low momentum (default 250)
	Init              Init
	Seed              uint64
	Parallel          parallel.Config
}

// DefaultConfig returns the usual t-SNE settings.
func DefaultConfig() Config {
	return Config{
		Components:        2,
		Perplexity:        30,
		Iterations:        1000,
		Exaggeration:      12,
		ExaggerationIters: 250,
		Init:              InitPCA,
		Parallel:          parallel.DefaultConfig(),
	}
}

func (c Config) withDefaults(n int) Config {
	def := DefaultConfig()
	if c.Components == 0 {
		c.Components = def.Components
	}
	if c.Perplexity == 0 {
		c.Perplexity = def.Perplexity
	}
	if c.Iterations == 0 {
		c.Iterations = def.Iterations
	}
	if c.Exaggeration == 0 {
		c.Exaggeration = def.Exaggeration
	}
	if c.ExaggerationIters == 0 {
		c.ExaggerationIters = def.ExaggerationIters
	}
	if c.LearningRate == 0 {
		c.LearningRate = max(float64(n)/c.Exaggeration/4, 50)
	}
	if c.Parallel.NumWorkers == 0 {
		c.Parallel = def.Parallel
	}
	return c
}

const (
	perplexityTol   = 1e-5
	perplexitySteps = 100
	minGain         = 0.01
	minProb         = 1e-12
	initScale       = 1e-4
)

// TSNE embeds the rows of x into cfg.Components dimensions.
//
// The perplexity must be smaller than the number of points; larger values
// are lowered to (n-1)/3.
func TSNE(x mat.Matrix, cfg Config) (*mat.Dense, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, fmt.Errorf("t-SNE needs at least 2 points, got %d", n)
	}
	cfg = cfg.withDefaults(n)
	if cfg.Components > d && cfg.Init == InitPCA {
		return nil, fmt.Errorf("t-SNE: %d components exceed input dimension %d", cfg.Components, d)
	}
	if cfg.Perplexity >= float64(n) {
		lowered := max(float64(n-1)/3, 1)
		klog.V(1).InfoS("Perplexity too large for sample count, lowering",
			"perplexity", cfg.Perplexity, "points", n, "lowered", lowered)
		cfg.Perplexity = lowered
	}

	p := jointProbabilities(x, cfg.Perplexity, cfg.Parallel)

	y, err := initEmbedding(x, cfg)
	if err != nil {
		return nil, err
	}
	optimize(p, y, cfg)
	return y, nil
}

// squaredDistances returns the n×n matrix of squared Euclidean distances.
func squaredDistances(x mat.Matrix, pc parallel.Config) []float64 {
	n, d := x.Dims()
	rows := make([][]float64, n)
	for i := range n {
		rows[i] = mat.Row(nil, i, x)
	}

	dist := make([]float64, n*n)
	parallel.For(n, func(i int) {
		for j := range n {
			var s float64
			for k := range d {
				diff := rows[i][k] - rows[j][k]
				s += diff * diff
			}
			dist[i*n+j] = s
		}
	}, pc)
	return dist
}

// jointProbabilities computes the symmetric input affinities P, flattened
// row-major and normalised to sum to one.
func jointProbabilities(x mat.Matrix, perplexity float64, pc parallel.Config) []float64 {
	n, _ := x.Dims()
	dist := squaredDistances(x, pc)
	cond := make([]float64, n*n)

	target := math.Log(perplexity)
	parallel.For(n, func(i int) {
		conditionalRow(dist[i*n:(i+1)*n], cond[i*n:(i+1)*n], i, target)
	}, pc)

	p := make([]float64, n*n)
	norm := 2 * float64(n)
	for i := range n {
		for j := range n {
			p[i*n+j] = max((cond[i*n+j]+cond[j*n+i])/norm, minProb)
		}
		p[i*n+i] = 0
	}
	return p
}

// conditionalRow fills out with p(j|i) for the precision whose entropy
// matches target, found by bisection on beta = 1/(2σ²).
func conditionalRow(dist, out []float64, i int, target float64) {
	beta := 1.0
	lo, hi := math.Inf(-1), math.Inf(1)

	for range perplexitySteps {
		var sum, weighted float64
		for j, dj := range dist {
			if j == i {
				out[j] = 0
				continue
			}
			v := math.Exp(-dj * beta)
			out[j] = v
			sum += v
			weighted += dj * v
		}
		if sum == 0 {
			sum = minProb
		}
		entropy := math.Log(sum) + beta*weighted/sum
		for j := range out {
			out[j] /= sum
		}

		diff := entropy - target
		if math.Abs(diff) < perplexityTol {
			return
		}
		if diff > 0 {
			lo = beta
			if math.IsInf(hi, 1) {
				beta *= 2
			} else {
				beta = (beta + hi) / 2
			}
		} else {
			hi = beta
			if math.IsInf(lo, -1) {
				beta /= 2
			} else {
				beta = (beta + lo) / 2
			}
		}
	}
}

// initEmbedding returns the starting n×k embedding.
func initEmbedding(x mat.Matrix, cfg Config) (*mat.Dense, error) {
	n, _ := x.Dims()
	k := cfg.Components

	if cfg.Init == InitPCA {
		y, err := PCA(x, k)
		if err != nil {
			return nil, fmt.Errorf("t-SNE initialisation: %w", err)
		}
		std := stat.PopStdDev(mat.Col(nil, 0, y), nil)
		if std > 0 {
			y.Scale(initScale/std, y)
		}
		return y, nil
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	data := make([]float64, n*k)
	for i := range data {
		data[i] = rng.NormFloat64() * initScale
	}
	return mat.NewDense(n, k, data), nil
}

// optimize runs gradient descent on y in place.
func optimize(p []float64, y *mat.Dense, cfg Config) {
	n, k := y.Dims()
	pos := y.RawMatrix().Data

	update := make([]float64, n*k)
	gains := make([]float64, n*k)
	for i := range gains {
		gains[i] = 1
	}
	grad := make([]float64, n*k)
	num := make([]float64, n*n)

	for iter := range cfg.Iterations {
		exaggeration, momentum := 1.0, 0.8
		if iter < cfg.ExaggerationIters {
			exaggeration, momentum = cfg.Exaggeration, 0.5
		}

		// Student-t kernel, one row per worker.
		z := parallel.Sum(n, func(i int) float64 {
			var rowSum float64
			for j := range n {
				if i == j {
					num[i*n+j] = 0
					continue
				}
				var dsq float64
				for c := range k {
					diff := pos[i*k+c] - pos[j*k+c]
					dsq += diff * diff
				}
				v := 1 / (1 + dsq)
				num[i*n+j] = v
				rowSum += v
			}
			return rowSum
		}, cfg.Parallel)
		z = max(z, minProb)

		parallel.For(n, func(i int) {
			g := grad[i*k : (i+1)*k]
			clear(g)
			for j := range n {
				if i == j {
					continue
				}
				q := max(num[i*n+j]/z, minProb)
				f := 4 * (exaggeration*p[i*n+j] - q) * num[i*n+j]
				for c := range k {
					g[c] += f * (pos[i*k+c] - pos[j*k+c])
				}
			}
		}, cfg.Parallel)

		for i, g := range grad {
			if (g > 0) != (update[i] > 0) {
				gains[i] += 0.2
			} else {
				gains[i] *= 0.8
			}
			gains[i] = max(gains[i], minGain)
			update[i] = momentum*update[i] - cfg.LearningRate*gains[i]*g
			pos[i] += update[i]
		}

		// Recentre to keep the embedding from drifting.
		for c := range k {
			var mean float64
			for i := range n {
				mean += pos[i*k+c]
			}
			mean /= float64(n)
			for i := range n {
				pos[i*k+c] -= mean
			}
		}
	}
}

// KLDivergence returns KL(P||Q) of embedding y against the input affinities
// of x at the given perplexity.
func KLDivergence(x, y mat.Matrix, perplexity float64) float64 {
	n, k := y.Dims()
	p := jointProbabilities(x, perplexity, parallel.Config{})

	num := make([]float64, n*n)
	var z float64
	for i := range n {
		for j := range n {
			if i == j {
				continue
			}
			var dsq float64
			for c := range k {
				diff := y.At(i, c) - y.At(j, c)
				dsq += diff * diff
			}
			num[i*n+j] = 1 / (1 + dsq)
			z += num[i*n+j]
		}
	}

	var kl float64
	for i := range n {
		for j := range n {
			if i == j {
				continue
			}
			pij := p[i*n+j]
			kl += pij * math.Log(pij/max(num[i*n+j]/z, minProb))
		}
	}
	return kl
}
