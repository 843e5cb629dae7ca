// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package flow provides the public API for invertible flow models.
//
// # Overview
//
// This package contains:
//   - Layer: the invertible-transform interface every component satisfies
//   - Permutations: Shuffle, Reverse, Invertible1x1Conv
//   - Couplings: AdditiveCoupling, AffineCoupling
//   - Multiscale structure: Squeeze, Split, GaussianPrior
//   - Normalization: BatchNorm
//   - Assembly: RevNetStep, RevNet, Codec, driven by a Config
//
// # Basic Usage
//
//	rng := rand.New(rand.NewSource(42))
//	cfg := flow.Config{
//	    Norm:        flow.NormNone,
//	    Permutation: flow.PermutationShuffle,
//	    Coupling:    flow.CouplingAdditive,
//	    Depth:       4,
//	    Levels:      2,
//	    CouplingFactory: func(in, out int) (flow.CouplingFunc, error) {
//	        return nn.NewConvNet(in, out, 64, rng), nil
//	    },
//	    Rand: rng,
//	}
//
//	codec, err := flow.NewCodec(tensor.Shape{16, 4, 32, 32}, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	objective, err := codec.Score(batch)   // per-example log-likelihood
//	sample, _, err := codec.Sample()       // one batch of synthetic data
package flow
