package tensor

import (
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros[float32](tensor.Shape{3, 4}, tensor.CPU)
func Zeros[T DType](shape Shape, device Device) *Tensor[T] {
	t, err := New[T](shape, device)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with a specific value.
func Full[T DType](shape Shape, value T, device Device) *Tensor[T] {
	t := Zeros[T](shape, device)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a float32 tensor with samples from the standard normal
// distribution drawn from rng.
func Randn(shape Shape, rng *rand.Rand, device Device) *Tensor[float32] {
	t := Zeros[float32](shape, device)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Linspace returns n evenly spaced values over [start, end], endpoints included.
func Linspace(start, end float32, n int) []float32 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float32{start}
	}
	out := make([]float32, n)
	step := (end - start) / float32(n-1)
	for i := range out {
		out[i] = start + float32(i)*step
	}
	out[n-1] = end
	return out
}
