// Package data provides image datasets and the batch loaders that feed an
// experiment.
//
// Images are single-channel float32 in [0, 1], resized to a square patch.
// Supported sources:
//   - MNIST in the IDX format (optionally gzip compressed)
//   - a synthetic dataset of class-dependent blobs for smoke runs
package data

import (
	"iter"

	"github.com/born-ml/vae/internal/tensor"
)

// Batch is a set of images [N,C,H,W] with their labels [N] on one device.
type Batch struct {
	Images *tensor.Tensor[float32]
	Labels *tensor.Tensor[int32]
}

// Len returns the number of examples.
func (b Batch) Len() int {
	return b.Images.Shape()[0]
}

// Device returns the device of the images.
func (b Batch) Device() tensor.Device {
	return b.Images.Device()
}

// To returns the batch on device.
func (b Batch) To(device tensor.Device) Batch {
	return Batch{Images: b.Images.To(device), Labels: b.Labels.To(device)}
}

// Source yields batches. Each call to Batches starts a new pass.
type Source interface {
	Batches() iter.Seq[Batch]
}

// Err returns the error that ended the last pass of src early. Sources
// without an Err method never fail.
func Err(src Source) error {
	if e, ok := src.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// First returns the first batch of src.
func First(src Source) (Batch, bool) {
	for b := range src.Batches() {
		return b, true
	}
	return Batch{}, false
}
