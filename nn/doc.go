// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the generative models are built from.
//
// # Overview
//
// This package contains:
//   - Linear: fully connected layer with explicit Forward and Backward
//   - ReLU and Sigmoid activations
//   - Container: named children with prefixed state dict keys
//   - Module and Parameter
//
// # Basic Usage
//
//	rng := rand.New(rand.NewPCG(1265, 0))
//	enc := nn.Container{
//	    {Name: "fc", Module: nn.NewLinear(784, 256, rng, tensor.CPU)},
//	    {Name: "mu", Module: nn.NewLinear(256, 16, rng, tensor.CPU)},
//	}
//	sd := enc.StateDict() // "fc.weight", "fc.bias", "mu.weight", "mu.bias"
//
// Layers do not record a graph: each Backward takes the input of the
// matching Forward and the upstream gradient, accumulates parameter
// gradients and returns the gradient for the input.
package nn
