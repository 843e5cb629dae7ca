// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

// Type aliases for public API

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Named axes of the NCHW layout.
const (
	Batch   = tensor.Batch
	Channel = tensor.Channel
	Height  = tensor.Height
	Width   = tensor.Width
)

// Tensor is a dense float64 array in NCHW layout.
type Tensor = tensor.Tensor

// Constructors

// New creates an uninitialized tensor with the given shape.
func New(shape Shape) *Tensor {
	return tensor.New(shape)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor filled with the given value.
func Full(shape Shape, value float64) *Tensor {
	return tensor.Full(shape, value)
}

// Randn creates a tensor of standard-normal draws from rng.
//
// Example:
//
//	rng := rand.New(rand.NewSource(42))
//	x := tensor.Randn(tensor.Shape{2, 4, 8, 8}, rng)
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}

// FromSlice creates a tensor over a copy of data, which must have exactly
// shape.NumElements() elements.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}
