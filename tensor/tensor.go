// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/vae/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for tensor element types: float32 and int32.
type DType = tensor.DType

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	NoDevice Device = tensor.NoDevice
	CPU      Device = tensor.CPU
	CUDA     Device = tensor.CUDA
	Metal    Device = tensor.Metal
	WebGPU   Device = tensor.WebGPU
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Image is the geometry of an [N,C,H,W] batch.
type Image = tensor.Image

// Tensor is a dense row-major tensor.
type Tensor[T DType] = tensor.Tensor[T]

// New creates a zero-filled tensor, validating shape.
func New[T DType](shape Shape, device Device) (*Tensor[T], error) {
	return tensor.New[T](shape, device)
}

// FromSlice wraps data (without copying) in a tensor of shape.
func FromSlice[T DType](data []T, shape Shape, device Device) (*Tensor[T], error) {
	return tensor.FromSlice(data, shape, device)
}

// Zeros creates a zero-filled tensor.
func Zeros[T DType](shape Shape, device Device) *Tensor[T] {
	return tensor.Zeros[T](shape, device)
}

// Full creates a tensor filled with value.
func Full[T DType](shape Shape, value T, device Device) *Tensor[T] {
	return tensor.Full(shape, value, device)
}

// Randn draws a standard normal float32 tensor from rng.
func Randn(shape Shape, rng *rand.Rand, device Device) *Tensor[float32] {
	return tensor.Randn(shape, rng, device)
}

// Stack concatenates tensors along the leading axis.
func Stack[T DType](items []*Tensor[T]) (*Tensor[T], error) {
	return tensor.Stack(items)
}

// ParseDevice parses a device name.
func ParseDevice(s string) (Device, error) {
	return tensor.ParseDevice(s)
}
