// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim exposes the optimizers and schedulers used for training.
//
//	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.005, WeightDecay: 0})
//	sched := optim.NewExponentialLR(opt, 0.95)
//
//	for epoch := range epochs {
//	    for _, batch := range batches {
//	        opt.ZeroGrad()
//	        // forward, loss.Backward(false)
//	        opt.Step()
//	    }
//	    sched.Step()
//	}
package optim

import (
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer with L2 weight decay.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// Schedulers

// ExponentialLR multiplies an optimizer's learning rate by gamma each epoch.
type ExponentialLR = optim.ExponentialLR

// NewExponentialLR binds an exponential scheduler to optimizer.
func NewExponentialLR(optimizer Optimizer, gamma float64) *ExponentialLR {
	return optim.NewExponentialLR(optimizer, gamma)
}
