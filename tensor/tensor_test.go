// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/tensor"
)

func TestPublicAPI(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, tensor.CPU, x.Device())

	batch, err := x.Reshape(1, 1, 2, 3)
	require.NoError(t, err)
	img, err := batch.Shape().AsImage()
	require.NoError(t, err)
	assert.Equal(t, tensor.Image{N: 1, C: 1, H: 2, W: 3}, img)

	stacked, err := tensor.Stack([]*tensor.Tensor[float32]{x, tensor.Full(tensor.Shape{2, 3}, float32(7), tensor.CPU)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, stacked.Shape())
	assert.Equal(t, float32(7), stacked.Data()[6])

	labels := tensor.Zeros[int32](tensor.Shape{4}, tensor.Metal)
	assert.Equal(t, tensor.Int32, labels.DType())
	assert.Equal(t, tensor.Metal, labels.Device())

	noise := tensor.Randn(tensor.Shape{3, 2}, rand.New(rand.NewPCG(1, 2)), tensor.CPU)
	assert.Equal(t, 6, noise.NumElements())

	_, err = tensor.New[float32](tensor.Shape{0, -1}, tensor.CPU)
	assert.Error(t, err)
}

func TestParseDevice(t *testing.T) {
	d, err := tensor.ParseDevice("mps")
	require.NoError(t, err)
	assert.Equal(t, tensor.Metal, d)

	_, err = tensor.ParseDevice("tpu")
	assert.Error(t, err)
}
