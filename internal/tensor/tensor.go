package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tensor is a dense row-major tensor with element type T.
//
// Tensors are plain host memory. The device tag records where the data
// logically lives so that callers can keep every tensor of a step co-located.
type Tensor[T DType] struct {
	data   []T
	shape  Shape
	device Device
}

// New creates a zero-filled tensor.
func New[T DType](shape Shape, device Device) (*Tensor[T], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor[T]{
		data:   make([]T, shape.NumElements()),
		shape:  shape.Clone(),
		device: device,
	}, nil
}

// FromSlice wraps data in a tensor of the given shape. The slice is not copied.
func FromSlice[T DType](data []T, shape Shape, device Device) (*Tensor[T], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	return &Tensor[T]{
		data:   data,
		shape:  shape.Clone(),
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor[T]) Shape() Shape {
	return t.shape
}

// Device returns the device the tensor belongs to.
func (t *Tensor[T]) Device() Device {
	return t.device
}

// DType returns the runtime element type.
func (t *Tensor[T]) DType() DataType {
	return inferDataType[T]()
}

// NumElements returns the total number of elements.
func (t *Tensor[T]) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage. Mutations are visible to the tensor.
func (t *Tensor[T]) Data() []T {
	return t.data
}

// Item returns the single element of a one-element tensor.
func (t *Tensor[T]) Item() T {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item called on tensor with %d elements", len(t.data)))
	}
	return t.data[0]
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	data := make([]T, len(t.data))
	copy(data, t.data)
	return &Tensor[T]{data: data, shape: t.shape.Clone(), device: t.device}
}

// To returns a copy of the tensor tagged with device. If the tensor already
// belongs to device it is returned unchanged.
func (t *Tensor[T]) To(device Device) *Tensor[T] {
	if t.device == device {
		return t
	}
	c := t.Clone()
	c.device = device
	return c
}

// Reshape returns a view with a new shape over the same storage.
// A single -1 dimension is inferred.
func (t *Tensor[T]) Reshape(dims ...int) (*Tensor[T], error) {
	shape := make(Shape, len(dims))
	infer := -1
	known := 1
	for i, d := range dims {
		switch {
		case d == -1 && infer == -1:
			infer = i
		case d <= 0:
			return nil, fmt.Errorf("invalid reshape dimension %d at index %d", d, i)
		default:
			known *= d
		}
		shape[i] = d
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension reshaping %v to %v", t.shape, dims)
		}
		shape[infer] = len(t.data) / known
	}
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.shape, len(t.data), shape)
	}
	return &Tensor[T]{data: t.data, shape: shape, device: t.device}, nil
}

// Index returns a view of item i along the leading axis, keeping a leading
// axis of size 1.
func (t *Tensor[T]) Index(i int) *Tensor[T] {
	if len(t.shape) == 0 || i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("index %d out of range for shape %v", i, t.shape))
	}
	per := t.shape.PerItem()
	shape := t.shape.Clone()
	shape[0] = 1
	return &Tensor[T]{data: t.data[i*per : (i+1)*per], shape: shape, device: t.device}
}

// Stack concatenates tensors along the leading axis. All inputs must share
// trailing dimensions and device.
func Stack[T DType](items []*Tensor[T]) (*Tensor[T], error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("stack of zero tensors")
	}
	first := items[0]
	trailing := first.shape[1:]
	n := 0
	for i, it := range items {
		if !Shape(it.shape[1:]).Equal(trailing) {
			return nil, fmt.Errorf("stack: tensor %d has shape %v, want [*%v]", i, it.shape, trailing)
		}
		if it.device != first.device {
			return nil, fmt.Errorf("stack: tensor %d on %s, want %s", i, it.device, first.device)
		}
		n += it.shape[0]
	}
	shape := append(Shape{n}, trailing...)
	data := make([]T, 0, shape.NumElements())
	for _, it := range items {
		data = append(data, it.data...)
	}
	return &Tensor[T]{data: data, shape: shape, device: first.device}, nil
}

// Bytes returns the little-endian encoding of the tensor data.
func (t *Tensor[T]) Bytes() []byte {
	out := make([]byte, 4*len(t.data))
	switch d := any(t.data).(type) {
	case []float32:
		for i, v := range d {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
	case []int32:
		for i, v := range d {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		}
	}
	return out
}

// FromBytes decodes little-endian data produced by Bytes.
func FromBytes[T DType](b []byte, shape Shape, device Device) (*Tensor[T], error) {
	if len(b) != 4*shape.NumElements() {
		return nil, fmt.Errorf("byte length %d does not match shape %v", len(b), shape)
	}
	t, err := New[T](shape, device)
	if err != nil {
		return nil, err
	}
	switch d := any(t.data).(type) {
	case []float32:
		for i := range d {
			d[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case []int32:
		for i := range d {
			d[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
		}
	}
	return t, nil
}
