// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for dense 4D tensor operations.
//
// Tensors are float64 arrays in NCHW layout (batch, channel, height,
// width), the layout every flow layer in this repository operates on.
//
// Example:
//
//	rng := rand.New(rand.NewSource(42))
//	x := tensor.Randn(tensor.Shape{2, 4, 8, 8}, rng)
//	y := x.Exp().MulScalar(0.5)
package tensor
