// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// Module is the interface every parameterized layer implements.
type Module = nn.Module

// Parameter is a trainable tensor with its accumulated gradient.
type Parameter = nn.Parameter

// Named pairs a child module with its name.
type Named = nn.Named

// Container is a Module assembled from named children; state dict keys are
// prefixed with the child name.
type Container = nn.Container

// Linear is a fully connected layer y = x @ W.T + b.
type Linear = nn.Linear

// NewParameter wraps t as a named parameter.
func NewParameter(name string, t *tensor.Tensor[float32]) *Parameter {
	return nn.NewParameter(name, t)
}

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand, device tensor.Device) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, rng, device)
}

// ReLU applies max(x, 0) element-wise.
func ReLU(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return nn.ReLU(input)
}

// Sigmoid applies 1/(1+exp(-x)) element-wise.
func Sigmoid(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return nn.Sigmoid(input)
}
