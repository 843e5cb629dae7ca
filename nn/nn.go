// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/nn"
)

// Conv2d is a stride-1 2D convolution with zero padding.
type Conv2d = nn.Conv2d

// NewConv2d creates a convolution with Xavier-initialized weights.
//
// Example:
//
//	rng := rand.New(rand.NewSource(42))
//	conv := nn.NewConv2d(4, 8, 3, 1, rng)  // in=4, out=8, kernel=3x3, padding=1
func NewConv2d(inChannels, outChannels, kernel, padding int, rng *rand.Rand) *Conv2d {
	return nn.NewConv2d(inChannels, outChannels, kernel, padding, rng)
}

// NewConv2dZeros creates a convolution with weights and bias at zero, so its
// output is zero until trained.
func NewConv2dZeros(inChannels, outChannels, kernel, padding int) *Conv2d {
	return nn.NewConv2dZeros(inChannels, outChannels, kernel, padding)
}

// ConvNet is the stock three-layer conditioning network for coupling layers.
type ConvNet = nn.ConvNet

// NewConvNet creates a conv-relu-conv-relu-conv network whose final layer is
// zero-initialized, so the whole network outputs zero until trained.
func NewConvNet(inChannels, outChannels, hidden int, rng *rand.Rand) *ConvNet {
	return nn.NewConvNet(inChannels, outChannels, hidden, rng)
}
