// Package model defines the contract between the experiment harness and a
// generative model.
//
// The harness never assumes a concrete architecture: it drives any value
// implementing Model through Forward and LossFunction, and the diagnostics
// use Encode, Decode, Sample and Generate.
package model

import (
	"errors"

	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
)

// LossKey is the LossResult entry that is differentiated.
const LossKey = "loss"

// ErrSamplingUnsupported is returned by Sample when a model cannot draw
// unconditional samples. Callers treat it as a warning, not a failure.
var ErrSamplingUnsupported = errors.New("model does not support unconditional sampling")

// Scalar is a differentiable scalar produced by a loss function.
type Scalar interface {
	// Item returns the scalar value.
	Item() float64

	// Backward accumulates gradients of this scalar into the model
	// parameters. With retainGraph false the cached activations are released
	// and a second call fails.
	Backward(retainGraph bool) error
}

// Value is a constant Scalar used for diagnostic loss entries.
type Value float64

// Item returns v.
func (v Value) Item() float64 { return float64(v) }

// Backward is a no-op: constants carry no gradient.
func (v Value) Backward(bool) error { return nil }

// LossResult maps loss-component names to scalars. It must contain LossKey.
type LossResult map[string]Scalar

// Loss returns the entry under LossKey.
func (r LossResult) Loss() (Scalar, bool) {
	s, ok := r[LossKey]
	return s, ok
}

// Values returns every entry as a plain float.
func (r LossResult) Values() map[string]float64 {
	out := make(map[string]float64, len(r))
	for k, s := range r {
		out[k] = s.Item()
	}
	return out
}

// Results is the opaque output of Forward, passed back to LossFunction.
// Its arity and contents are defined by the model.
type Results []any

// LossArgs carries the arguments of a loss evaluation.
type LossArgs struct {
	KLDWeight    float64 // Weight of the regularization term
	OptimizerIdx int     // Which optimizer the loss is computed for
	BatchIdx     int     // Index of the batch within the epoch
}

// Model is a generative model the harness can train and inspect.
type Model interface {
	nn.Module

	// Name identifies the model in file names and logs.
	Name() string

	// Forward runs the model on images [N,C,H,W] with their labels [N].
	Forward(images *tensor.Tensor[float32], labels *tensor.Tensor[int32]) (Results, error)

	// LossFunction turns Forward results into named losses.
	LossFunction(results Results, args LossArgs) (LossResult, error)

	// Encode returns the latent parameters of images, mean first.
	Encode(images *tensor.Tensor[float32]) ([]*tensor.Tensor[float32], error)

	// Decode maps latent points [N,D] to images.
	Decode(z *tensor.Tensor[float32]) (*tensor.Tensor[float32], error)

	// Sample draws count images on device. labels may be nil.
	Sample(count int, device tensor.Device, labels *tensor.Tensor[int32]) (*tensor.Tensor[float32], error)

	// Generate reconstructs images. labels may be nil.
	Generate(images *tensor.Tensor[float32], labels *tensor.Tensor[int32]) (*tensor.Tensor[float32], error)
}

// SubmoduleProvider is implemented by models exposing named components
// whose parameters can be optimized on their own.
type SubmoduleProvider interface {
	Submodule(name string) (nn.Module, bool)
}
