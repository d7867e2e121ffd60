// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/nn"
	"github.com/born-ml/vae/tensor"
)

func TestContainerStateDict(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	enc := nn.Container{
		{Name: "fc", Module: nn.NewLinear(4, 3, rng, tensor.CPU)},
		{Name: "mu", Module: nn.NewLinear(3, 2, rng, tensor.CPU)},
	}

	sd := enc.StateDict()
	assert.Len(t, sd, 4)
	assert.Contains(t, sd, "fc.weight")
	assert.Contains(t, sd, "mu.bias")
	assert.Len(t, enc.Parameters(), 4)

	child, ok := enc.Child("mu")
	require.True(t, ok)
	assert.Len(t, child.Parameters(), 2)

	other := nn.Container{
		{Name: "fc", Module: nn.NewLinear(4, 3, rng, tensor.CPU)},
		{Name: "mu", Module: nn.NewLinear(3, 2, rng, tensor.CPU)},
	}
	require.NoError(t, other.LoadStateDict(sd))
	assert.Equal(t, sd["fc.weight"].Data(), other.StateDict()["fc.weight"].Data())
}

func TestLinearForward(t *testing.T) {
	layer := nn.NewLinear(2, 1, rand.New(rand.NewPCG(3, 4)), tensor.CPU)
	x, err := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{2, 2}, tensor.CPU)
	require.NoError(t, err)

	y := layer.Forward(x)
	w := layer.StateDict()["weight"].Data()
	assert.Equal(t, tensor.Shape{2, 1}, y.Shape())
	assert.InDelta(t, w[0], y.Data()[0], 1e-6)
	assert.InDelta(t, w[1], y.Data()[1], 1e-6)
}

func TestActivations(t *testing.T) {
	x, err := tensor.FromSlice([]float32{-1, 0, 2}, tensor.Shape{1, 3}, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 2}, nn.ReLU(x).Data())
	assert.InDelta(t, 0.5, nn.Sigmoid(x).Data()[1], 1e-6)
}
