// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public face of the dense tensors used by the models.
//
// # Overview
//
// Tensors hold row-major data of one element type on one device:
//   - Tensor[T]: generic tensor over float32 or int32
//   - Shape: dimensions, with helpers for [N,C,H,W] image batches
//   - Device: where the data lives (CPU, CUDA, Metal, WebGPU)
//
// # Basic Usage
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
//	if err != nil {
//	    return err
//	}
//	batch, err := x.Reshape(1, 1, 2, 3)
//
// # Devices
//
// Device names accepted by ParseDevice are "cpu", "cuda", "metal" (or
// "mps") and "webgpu" (or "wgpu"). Moving a tensor with To keeps its data
// and changes only the device tag.
package tensor
