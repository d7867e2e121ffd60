package data

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// Dataset is an indexable collection of labelled images.
type Dataset interface {
	// Len returns the number of examples.
	Len() int

	// At returns example i as an image [1,C,H,W] and its label.
	At(i int) (*tensor.Tensor[float32], int32)
}

// InMemory is a Dataset held in one contiguous buffer.
type InMemory struct {
	pixels []float32 // [N, C*H*W]
	labels []int32
	image  tensor.Image
}

// NewInMemory wraps pixels laid out as [N,C,H,W] and their labels.
func NewInMemory(pixels []float32, labels []int32, channels, height, width int) (*InMemory, error) {
	per := channels * height * width
	if per <= 0 {
		return nil, fmt.Errorf("invalid image geometry %dx%dx%d", channels, height, width)
	}
	if len(pixels) != len(labels)*per {
		return nil, fmt.Errorf("%d pixels for %d images of %d pixels", len(pixels), len(labels), per)
	}
	return &InMemory{
		pixels: pixels,
		labels: labels,
		image:  tensor.Image{N: len(labels), C: channels, H: height, W: width},
	}, nil
}

// Len returns the number of examples.
func (d *InMemory) Len() int { return len(d.labels) }

// Geometry returns the dataset shape as [N,C,H,W].
func (d *InMemory) Geometry() tensor.Image { return d.image }

// At returns example i.
func (d *InMemory) At(i int) (*tensor.Tensor[float32], int32) {
	per := d.image.C * d.image.H * d.image.W
	img, err := tensor.FromSlice(d.pixels[i*per:(i+1)*per], tensor.Shape{1, d.image.C, d.image.H, d.image.W}, tensor.CPU)
	if err != nil {
		panic(err) // geometry is validated by NewInMemory
	}
	return img, d.labels[i]
}

// Subset returns the examples [from, to) sharing the same storage.
func (d *InMemory) Subset(from, to int) *InMemory {
	per := d.image.C * d.image.H * d.image.W
	img := d.image
	img.N = to - from
	return &InMemory{
		pixels: d.pixels[from*per : to*per],
		labels: d.labels[from:to],
		image:  img,
	}
}

// Collate stacks examples idx of ds into a batch on device.
func Collate(ds Dataset, idx []int, device tensor.Device) (Batch, error) {
	images := make([]*tensor.Tensor[float32], len(idx))
	labels := make([]int32, len(idx))
	for k, i := range idx {
		images[k], labels[k] = ds.At(i)
	}
	stacked, err := tensor.Stack(images)
	if err != nil {
		return Batch{}, err
	}
	lab, err := tensor.FromSlice(labels, tensor.Shape{len(labels)}, tensor.CPU)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Images: stacked, Labels: lab}.To(device), nil
}
