package nn

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that receive gradients during the backward pass.
// They typically represent weights and biases of layers.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // nil before the first backward pass
type Parameter struct {
	name   string                  // Parameter name (e.g., "weight", "bias")
	tensor *tensor.Tensor[float32] // The parameter tensor
	grad   []float32               // Accumulated gradient, nil when cleared
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor[float32]) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor[float32] {
	return p.tensor
}

// Grad returns the accumulated gradient.
//
// Returns nil if no gradient has been accumulated since the last ZeroGrad.
func (p *Parameter) Grad() []float32 {
	return p.grad
}

// AccumulateGrad adds g to the parameter gradient.
func (p *Parameter) AccumulateGrad(g []float32) {
	if len(g) != p.tensor.NumElements() {
		panic(fmt.Sprintf("gradient for %s has %d elements, want %d", p.name, len(g), p.tensor.NumElements()))
	}
	if p.grad == nil {
		p.grad = make([]float32, len(g))
	}
	for i, v := range g {
		p.grad[i] += v
	}
}

// ZeroGrad clears the gradient.
//
// This should be called before each training iteration to avoid
// accumulating gradients from previous iterations.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}
