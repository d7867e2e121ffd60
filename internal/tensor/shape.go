package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Image describes a batch of images laid out as [N, C, H, W].
type Image struct {
	N, C, H, W int
}

// AsImage interprets a rank-4 shape as an image batch.
func (s Shape) AsImage() (Image, error) {
	if len(s) != 4 {
		return Image{}, fmt.Errorf("expected rank-4 image shape [N,C,H,W], got %v", s)
	}
	return Image{N: s[0], C: s[1], H: s[2], W: s[3]}, nil
}

// PerItem returns the number of elements of one leading-axis item.
func (s Shape) PerItem() int {
	if len(s) == 0 {
		return 1
	}
	return Shape(s[1:]).NumElements()
}
