// Package vision arranges image batches into grids and writes them as PNG.
//
// The layout matches the usual save_image convention: images are placed
// row-major, Columns per row, separated and framed by Padding pixels of
// PadValue. With Normalize the whole batch is min-max scaled into [0, 1]
// before the grid is assembled.
package vision

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// Grid defaults.
const (
	DefaultColumns = 12
	DefaultPadding = 2
)

// GridOptions controls MakeGrid.
type GridOptions struct {
	Columns   int     // Images per row (default 12)
	Padding   int     // Pixels between and around images (default 2)
	PadValue  float32 // Fill value of the padding
	Normalize bool    // Min-max scale the batch into [0, 1]
}

// DefaultGridOptions returns a normalized 12-column grid with 2px padding.
func DefaultGridOptions() GridOptions {
	return GridOptions{Columns: DefaultColumns, Padding: DefaultPadding, Normalize: true}
}

// MakeGrid lays out a [N,C,H,W] batch as one [C,H',W'] image.
func MakeGrid(images *tensor.Tensor[float32], opts GridOptions) (*tensor.Tensor[float32], error) {
	geom, err := images.Shape().AsImage()
	if err != nil {
		return nil, fmt.Errorf("make grid: %w", err)
	}
	if geom.N == 0 {
		return nil, fmt.Errorf("make grid: empty batch")
	}
	if opts.Columns <= 0 {
		opts.Columns = DefaultColumns
	}
	if opts.Padding < 0 {
		return nil, fmt.Errorf("make grid: negative padding %d", opts.Padding)
	}

	src := images.Data()
	if opts.Normalize {
		src = normalize(src)
	}

	cols := min(opts.Columns, geom.N)
	rows := (geom.N + cols - 1) / cols
	cellH, cellW := geom.H+opts.Padding, geom.W+opts.Padding
	outH, outW := rows*cellH+opts.Padding, cols*cellW+opts.Padding

	grid := tensor.Full(tensor.Shape{geom.C, outH, outW}, opts.PadValue, images.Device())
	dst := grid.Data()
	plane := geom.H * geom.W
	for n := range geom.N {
		top := (n/cols)*cellH + opts.Padding
		left := (n%cols)*cellW + opts.Padding
		for c := range geom.C {
			in := src[(n*geom.C+c)*plane:]
			out := dst[c*outH*outW:]
			for y := range geom.H {
				copy(out[(top+y)*outW+left:(top+y)*outW+left+geom.W], in[y*geom.W:(y+1)*geom.W])
			}
		}
	}
	return grid, nil
}

// normalize returns a copy of v scaled by its own range into [0, 1].
func normalize(v []float32) []float32 {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	scale := max(hi-lo, 1e-5)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = (x - lo) / scale
	}
	return out
}
