// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the convolutional building blocks used to
// parameterize coupling layers and learned priors.
//
// # Overview
//
// This package contains:
//   - Conv2d: a stride-1 2D convolution with zero padding
//   - ConvNet: the stock conv-relu-conv-relu-conv conditioning network
//
// ConvNet satisfies the coupling-function contract of package flow, so a
// flow.Config can use nn.NewConvNet directly as its coupling factory:
//
//	cfg.CouplingFactory = func(in, out int) (flow.CouplingFunc, error) {
//	    return nn.NewConvNet(in, out, 64, rng), nil
//	}
package nn
