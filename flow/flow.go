// Copyright 2026 The Glow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package flow

import (
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/flow"
	"github.com/ecreager/glow/internal/tensor"
)

// Type aliases for public API

// Layer is an invertible transform carrying a log-likelihood contribution.
type Layer = flow.Layer

// Objective is the per-example log-likelihood accumulator threaded through a
// flow.
type Objective = flow.Objective

// LayerList composes layers in order forward and in reverse order backward.
type LayerList = flow.LayerList

// CouplingFunc is the conditioning-network contract of the coupling layers.
type CouplingFunc = flow.CouplingFunc

// Sentinel errors.
var (
	ErrShape          = flow.ErrShape
	ErrConfig         = flow.ErrConfig
	ErrMode           = flow.ErrMode
	ErrNotImplemented = flow.ErrNotImplemented
)

// Architecture selectors.
type (
	Norm        = flow.Norm
	Permutation = flow.Permutation
	Coupling    = flow.Coupling
)

// Architecture variants.
const (
	NormNone      = flow.NormNone
	NormActNorm   = flow.NormActNorm
	NormBatchNorm = flow.NormBatchNorm

	PermutationReverse = flow.PermutationReverse
	PermutationShuffle = flow.PermutationShuffle
	PermutationConv    = flow.PermutationConv

	CouplingAdditive = flow.CouplingAdditive
	CouplingAffine   = flow.CouplingAffine
)

// Layers

// Shuffle permutes channels by a fixed random permutation.
type Shuffle = flow.Shuffle

// NewShuffle creates a channel shuffle with a permutation drawn from rng.
func NewShuffle(numChannels int, rng *rand.Rand) (*Shuffle, error) {
	return flow.NewShuffle(numChannels, rng)
}

// Reverse flips the channel order.
type Reverse = flow.Reverse

// NewReverse creates a channel reversal.
func NewReverse(numChannels int) (*Reverse, error) {
	return flow.NewReverse(numChannels)
}

// Invertible1x1Conv mixes channels with a learned invertible matrix.
type Invertible1x1Conv = flow.Invertible1x1Conv

// NewInvertible1x1Conv creates a channel mixer with a random orthogonal
// initialization drawn from rng.
func NewInvertible1x1Conv(numChannels int, rng *rand.Rand) (*Invertible1x1Conv, error) {
	return flow.NewInvertible1x1Conv(numChannels, rng)
}

// Squeeze trades spatial extent for channels.
type Squeeze = flow.Squeeze

// NewSqueeze creates a squeeze for the given input shape and factor.
func NewSqueeze(inputShape tensor.Shape, factor int) (*Squeeze, error) {
	return flow.NewSqueeze(inputShape, factor)
}

// Split factors out half the channels under a learned Gaussian prior.
type Split = flow.Split

// NewSplit creates a split for the given input shape, sampling the factored
// half from rng on the reverse pass.
func NewSplit(inputShape tensor.Shape, rng *rand.Rand) (*Split, error) {
	return flow.NewSplit(inputShape, rng)
}

// GaussianPrior is the terminal prior that consumes the remaining channels.
type GaussianPrior = flow.GaussianPrior

// NewGaussianPrior creates the terminal prior, learned when learnTop is set.
func NewGaussianPrior(inputShape tensor.Shape, learnTop bool, rng *rand.Rand) (*GaussianPrior, error) {
	return flow.NewGaussianPrior(inputShape, learnTop, rng)
}

// AdditiveCoupling shifts half the channels by a function of the other half.
type AdditiveCoupling = flow.AdditiveCoupling

// NewAdditiveCoupling creates an additive coupling over numChannels channels.
func NewAdditiveCoupling(numChannels int, fn CouplingFunc) (*AdditiveCoupling, error) {
	return flow.NewAdditiveCoupling(numChannels, fn)
}

// AffineCoupling shifts and rescales half the channels by functions of the
// other half.
type AffineCoupling = flow.AffineCoupling

// NewAffineCoupling creates an affine coupling over numChannels channels.
func NewAffineCoupling(numChannels int, fn CouplingFunc) (*AffineCoupling, error) {
	return flow.NewAffineCoupling(numChannels, fn)
}

// BatchNorm normalizes per channel with an exact Jacobian correction.
type BatchNorm = flow.BatchNorm

// NewBatchNorm creates a batch normalization over numChannels channels.
func NewBatchNorm(numChannels int) (*BatchNorm, error) {
	return flow.NewBatchNorm(numChannels)
}

// ActNorm is the per-channel activation normalization variant. It is not
// implemented; construction fails with ErrNotImplemented.
type ActNorm = flow.ActNorm

// NewActNorm fails with ErrNotImplemented.
func NewActNorm(numChannels int) (*ActNorm, error) {
	return flow.NewActNorm(numChannels)
}

// Assembly

// Config declares the architecture of a flow model.
type Config = flow.Config

// RevNetStep is one norm-permute-couple step of the flow.
type RevNetStep = flow.RevNetStep

// NewRevNetStep builds one flow step over numChannels channels.
func NewRevNetStep(numChannels int, cfg Config) (*RevNetStep, error) {
	return flow.NewRevNetStep(numChannels, cfg)
}

// RevNet stacks flow steps at one scale.
type RevNet = flow.RevNet

// NewRevNet builds a stack of cfg.Depth steps for the given input shape.
func NewRevNet(inputShape tensor.Shape, cfg Config) (*RevNet, error) {
	return flow.NewRevNet(inputShape, cfg)
}

// Codec is the full multiscale model.
type Codec = flow.Codec

// NewCodec builds the full model for inputs of the given shape.
func NewCodec(inputShape tensor.Shape, cfg Config) (*Codec, error) {
	return flow.NewCodec(inputShape, cfg)
}

// NewObjective creates a zeroed objective for a batch of the given size.
func NewObjective(batch int) Objective {
	return flow.NewObjective(batch)
}

// NewLayerList composes the given layers.
func NewLayerList(layers ...Layer) *LayerList {
	return flow.NewLayerList(layers...)
}
