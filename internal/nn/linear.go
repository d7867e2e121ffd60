package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/vae/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand, device tensor.Device) *Linear {
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng, device)
	bias := tensor.Zeros[float32](tensor.Shape{outFeatures}, device)

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// Forward computes y = x @ W.T + b for x of shape [batch_size, in_features].
func (l *Linear) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear: input must have shape [batch, %d], got %v", l.inFeatures, shape))
	}
	batch := shape[0]

	out := tensor.Zeros[float32](tensor.Shape{batch, l.outFeatures}, input.Device())
	y := out.Data()
	b := l.bias.Tensor().Data()
	for i := 0; i < batch; i++ {
		copy(y[i*l.outFeatures:(i+1)*l.outFeatures], b)
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		general(input.Data(), batch, l.inFeatures),
		general(l.weight.Tensor().Data(), l.outFeatures, l.inFeatures),
		1,
		general(y, batch, l.outFeatures))
	return out
}

// Backward accumulates weight and bias gradients for the forward call that
// consumed input, and returns the gradient with respect to input.
func (l *Linear) Backward(input, gradOutput *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	batch := input.Shape()[0]
	if !gradOutput.Shape().Equal(tensor.Shape{batch, l.outFeatures}) {
		panic(fmt.Sprintf("Linear: gradient shape %v, want [%d, %d]", gradOutput.Shape(), batch, l.outFeatures))
	}
	dy := general(gradOutput.Data(), batch, l.outFeatures)

	// dW = dY.T @ X
	dw := make([]float32, l.outFeatures*l.inFeatures)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		dy,
		general(input.Data(), batch, l.inFeatures),
		0,
		general(dw, l.outFeatures, l.inFeatures))
	l.weight.AccumulateGrad(dw)

	// db = sum over batch of dY
	db := make([]float32, l.outFeatures)
	g := gradOutput.Data()
	for i := 0; i < batch; i++ {
		for j := 0; j < l.outFeatures; j++ {
			db[j] += g[i*l.outFeatures+j]
		}
	}
	l.bias.AccumulateGrad(db)

	// dX = dY @ W
	gradInput := tensor.Zeros[float32](tensor.Shape{batch, l.inFeatures}, input.Device())
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		dy,
		general(l.weight.Tensor().Data(), l.outFeatures, l.inFeatures),
		0,
		general(gradInput.Data(), batch, l.inFeatures))
	return gradInput
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// StateDict returns {"weight", "bias"}.
func (l *Linear) StateDict() map[string]*tensor.Tensor[float32] {
	return map[string]*tensor.Tensor[float32]{
		"weight": l.weight.Tensor(),
		"bias":   l.bias.Tensor(),
	}
}

// LoadStateDict loads weight and bias.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.Tensor[float32]) error {
	for _, p := range l.Parameters() {
		if err := loadParameter(stateDict, p); err != nil {
			return err
		}
	}
	return nil
}

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}
