// Package optim implements the optimizers and learning-rate schedulers used
// to train the generative models.
//
// This package provides:
//   - Optimizer interface: base interface for all optimizers
//   - Adam: Adaptive Moment Estimation with L2 weight decay
//   - ExponentialLR: multiplicative per-epoch learning-rate decay
//
// Example usage:
//
//	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 1e-3})
//	sched := optim.NewExponentialLR(opt, 0.95)
//
//	for epoch := range epochs {
//	    for _, batch := range batches {
//	        opt.ZeroGrad()
//	        loss := step(batch)
//	        _ = loss.Backward(false)
//	        opt.Step()
//	    }
//	    sched.Step()
//	}
package optim

import (
	"github.com/born-ml/vae/internal/nn"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters from the gradients accumulated on them
// by the backward pass.
type Optimizer interface {
	// Step applies gradient updates to all parameters that have a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR updates the learning rate. Used by schedulers.
	SetLR(lr float64)

	// Params returns the parameters bound to this optimizer.
	Params() []*nn.Parameter
}
