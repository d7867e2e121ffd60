package manifold

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA projects the rows of x onto its top k principal components.
//
// The result is n×k. Component signs are fixed so that the largest-magnitude
// loading of each component is positive, making the output deterministic.
func PCA(x mat.Matrix, k int) (*mat.Dense, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, fmt.Errorf("pca needs at least 2 points, got %d", n)
	}
	if k < 1 || k > d {
		return nil, fmt.Errorf("pca: cannot extract %d components from %d dimensions", k, d)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, fmt.Errorf("pca: eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues are ascending; take the last k columns in reverse.
	basis := mat.NewDense(d, k, nil)
	for c := range k {
		src := d - 1 - c
		col := mat.Col(nil, src, &vecs)
		if col[argMaxAbs(col)] < 0 {
			for i := range col {
				col[i] = -col[i]
			}
		}
		basis.SetCol(c, col)
	}

	centered := mat.DenseCopyOf(x)
	for j := range d {
		col := mat.Col(nil, j, centered)
		mean := stat.Mean(col, nil)
		for i := range n {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var out mat.Dense
	out.Mul(centered, basis)
	return &out, nil
}

func argMaxAbs(v []float64) int {
	best := 0
	for i, x := range v {
		if math.Abs(x) > math.Abs(v[best]) {
			best = i
		}
	}
	return best
}
