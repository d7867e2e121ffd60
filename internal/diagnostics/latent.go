package diagnostics

import (
	"context"
	"fmt"
	"image/color"
	"maps"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"k8s.io/klog/v2"

	"github.com/born-ml/vae/internal/data"
	"github.com/born-ml/vae/internal/manifold"
)

// classColors is the ten-colour categorical palette used for class labels.
var classColors = []color.RGBA{
	{0x1f, 0x77, 0xb4, 0xe6},
	{0xff, 0x7f, 0x0e, 0xe6},
	{0x2c, 0xa0, 0x2c, 0xe6},
	{0xd6, 0x27, 0x28, 0xe6},
	{0x94, 0x67, 0xbd, 0xe6},
	{0x8c, 0x56, 0x4b, 0xe6},
	{0xe3, 0x77, 0xc2, 0xe6},
	{0x7f, 0x7f, 0x7f, 0xe6},
	{0xbc, 0xbd, 0x22, 0xe6},
	{0x17, 0xbe, 0xcf, 0xe6},
}

// LatentPoints holds encoded latent means and their labels.
type LatentPoints struct {
	Codes  *mat.Dense // n×latent
	Labels []int32
}

// Len returns the number of points.
func (p LatentPoints) Len() int { return len(p.Labels) }

// Subsample returns n points drawn without replacement from p, kept in their
// original order. p is returned unchanged when it has at most n points or
// n <= 0.
func (p LatentPoints) Subsample(rng *rand.Rand, n int) LatentPoints {
	if n <= 0 || p.Len() <= n {
		return p
	}
	idx := rng.Perm(p.Len())[:n]
	slices.Sort(idx)

	_, width := p.Codes.Dims()
	codes := mat.NewDense(n, width, nil)
	labels := make([]int32, n)
	for row, i := range idx {
		codes.SetRow(row, p.Codes.RawRowView(i))
		labels[row] = p.Labels[i]
	}
	return LatentPoints{Codes: codes, Labels: labels}
}

// EncodeAll encodes every batch of src and collects the latent means.
func (e *Engine) EncodeAll(ctx context.Context, src data.Source) (LatentPoints, error) {
	var (
		codes  []float64
		labels []int32
		width  int
	)
	for batch := range src.Batches() {
		if err := ctx.Err(); err != nil {
			return LatentPoints{}, err
		}
		batch = batch.To(e.device(batch.Device()))
		encoded, err := e.model.Encode(batch.Images)
		if err != nil {
			return LatentPoints{}, fmt.Errorf("encode: %w", err)
		}
		mu := encoded[0]
		shape := mu.Shape()
		if len(shape) != 2 {
			return LatentPoints{}, fmt.Errorf("latent means have shape %v, want [N, latent]", shape)
		}
		width = shape[1]
		for _, v := range mu.Data() {
			codes = append(codes, float64(v))
		}
		labels = append(labels, batch.Labels.Data()...)
	}
	if err := data.Err(src); err != nil {
		return LatentPoints{}, err
	}
	if len(labels) == 0 {
		return LatentPoints{}, ErrEmptySource
	}
	return LatentPoints{Codes: mat.NewDense(len(labels), width, codes), Labels: labels}, nil
}

// VisualizeLatentSpace encodes all of src, projects the latent means to 2D
// with t-SNE and writes a scatter plot coloured by class. At most the
// engine's point cap (DefaultMaxLatentPoints unless set with WithMaxPoints)
// is projected, drawn with the engine's seeded generator.
func (e *Engine) VisualizeLatentSpace(ctx context.Context, src data.Source) (string, error) {
	points, err := e.EncodeAll(ctx, src)
	if err != nil {
		return "", err
	}
	encoded := points.Len()
	points = points.Subsample(e.rng, e.maxPoints)
	klog.V(1).InfoS("Projecting latent space", "encoded", encoded, "points", points.Len())

	embedded, err := manifold.TSNE(points.Codes, e.tsne)
	if err != nil {
		return "", fmt.Errorf("t-SNE: %w", err)
	}

	p, err := scatterPlot(embedded, points.Labels)
	if err != nil {
		return "", err
	}
	path := e.env.Run().Path(FiguresDir, "latent_space.png")
	if err := os.MkdirAll(e.env.Run().Path(FiguresDir), 0o755); err != nil {
		return "", fmt.Errorf("create figure directory: %w", err)
	}
	if err := p.Save(10*vg.Inch, 10*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save latent space: %w", err)
	}
	return path, nil
}

// scatterPlot draws one series per class, with a legend titled "Classes"
// in the upper left corner and a light grid behind the points.
func scatterPlot(embedded mat.Matrix, labels []int32) (*plot.Plot, error) {
	byClass := make(map[int32]plotter.XYs)
	for i, label := range labels {
		byClass[label] = append(byClass[label], plotter.XY{X: embedded.At(i, 0), Y: embedded.At(i, 1)})
	}

	p := plot.New()
	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 0xd3}
	grid.Horizontal.Color = color.Gray{Y: 0xd3}
	p.Add(grid)

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.Add("Classes")

	for _, class := range slices.Sorted(maps.Keys(byClass)) {
		s, err := plotter.NewScatter(byClass[class])
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", class, err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Color = classColors[(int(class)%len(classColors)+len(classColors))%len(classColors)]
		p.Add(s)
		p.Legend.Add(strconv.Itoa(int(class)), s)
	}
	return p, nil
}
