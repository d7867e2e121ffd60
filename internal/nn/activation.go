package nn

import (
	"math"

	"github.com/born-ml/vae/internal/tensor"
)

// ReLU applies f(x) = max(0, x) element-wise.
func ReLU(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := input.Clone()
	for i, v := range out.Data() {
		if v < 0 {
			out.Data()[i] = 0
		}
	}
	return out
}

// ReLUBackward returns gradOutput masked by input > 0.
func ReLUBackward(input, gradOutput *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	grad := gradOutput.Clone()
	x := input.Data()
	for i := range grad.Data() {
		if x[i] <= 0 {
			grad.Data()[i] = 0
		}
	}
	return grad
}

// Sigmoid applies σ(x) = 1 / (1 + exp(-x)) element-wise.
func Sigmoid(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := input.Clone()
	for i, v := range out.Data() {
		out.Data()[i] = float32(1.0 / (1.0 + math.Exp(-float64(v))))
	}
	return out
}

// SigmoidBackward returns gradOutput * σ(x) * (1 - σ(x)) given the sigmoid output.
func SigmoidBackward(output, gradOutput *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	grad := gradOutput.Clone()
	y := output.Data()
	for i := range grad.Data() {
		grad.Data()[i] *= y[i] * (1 - y[i])
	}
	return grad
}
