package flow

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

// Norm selects the normalization variant of a flow step.
type Norm string

// Normalization variants.
const (
	NormNone      Norm = "none"
	NormActNorm   Norm = "actnorm"
	NormBatchNorm Norm = "batchnorm"
)

// Permutation selects the channel-permutation variant of a flow step.
type Permutation string

// Permutation variants.
const (
	PermutationReverse Permutation = "reverse"
	PermutationShuffle Permutation = "shuffle"
	PermutationConv    Permutation = "conv"
)

// Coupling selects the coupling variant of a flow step.
type Coupling string

// Coupling variants.
const (
	CouplingAdditive Coupling = "additive"
	CouplingAffine   Coupling = "affine"
)

// Config declares the architecture of a flow model. It is consumed once at
// construction; shapes are propagated through the stack at build time, and
// every stochastic component draws from the explicitly supplied generator.
type Config struct {
	Norm        Norm
	Permutation Permutation
	Coupling    Coupling

	// Depth is the number of flow steps per scale.
	Depth int
	// Levels is the number of scales.
	Levels int
	// LearnTop selects a learned head for the terminal prior instead of a
	// fixed standard normal.
	LearnTop bool

	// CouplingFactory builds the conditioning network for each coupling
	// layer, given its input/output channel contract.
	CouplingFactory func(inChannels, outChannels int) (CouplingFunc, error)

	// Rand is the generator used for shuffle permutations, orthogonal
	// initialization, and prior sampling.
	Rand *rand.Rand
}

func (c Config) validate() error {
	if c.Depth <= 0 {
		return fmt.Errorf("config: %w: depth %d (must be positive)", ErrConfig, c.Depth)
	}
	if c.Levels <= 0 {
		return fmt.Errorf("config: %w: levels %d (must be positive)", ErrConfig, c.Levels)
	}
	if c.CouplingFactory == nil {
		return fmt.Errorf("config: %w: no coupling factory", ErrConfig)
	}
	if c.Rand == nil {
		return fmt.Errorf("config: %w: no random generator", ErrConfig)
	}
	return nil
}

// RevNetStep is one step of the flow: normalization, then permutation, then
// coupling, in that fixed order.
type RevNetStep struct {
	*LayerList
}

// NewRevNetStep builds one flow step over numChannels channels. An
// unrecognized normalization, permutation, or coupling selection is a
// configuration error.
func NewRevNetStep(numChannels int, cfg Config) (*RevNetStep, error) {
	var layers []Layer

	switch cfg.Norm {
	case NormNone, "":
	case NormActNorm:
		norm, err := NewActNorm(numChannels)
		if err != nil {
			return nil, err
		}
		layers = append(layers, norm)
	case NormBatchNorm:
		norm, err := NewBatchNorm(numChannels)
		if err != nil {
			return nil, err
		}
		layers = append(layers, norm)
	default:
		return nil, fmt.Errorf("revnet step: %w: unknown norm %q", ErrConfig, cfg.Norm)
	}

	switch cfg.Permutation {
	case PermutationReverse:
		perm, err := NewReverse(numChannels)
		if err != nil {
			return nil, err
		}
		layers = append(layers, perm)
	case PermutationShuffle:
		perm, err := NewShuffle(numChannels, cfg.Rand)
		if err != nil {
			return nil, err
		}
		layers = append(layers, perm)
	case PermutationConv:
		perm, err := NewInvertible1x1Conv(numChannels, cfg.Rand)
		if err != nil {
			return nil, err
		}
		layers = append(layers, perm)
	default:
		return nil, fmt.Errorf("revnet step: %w: unknown permutation %q", ErrConfig, cfg.Permutation)
	}

	half := numChannels / 2
	switch cfg.Coupling {
	case CouplingAdditive:
		fn, err := cfg.CouplingFactory(half, half)
		if err != nil {
			return nil, fmt.Errorf("revnet step: coupling factory: %w", err)
		}
		coupling, err := NewAdditiveCoupling(numChannels, fn)
		if err != nil {
			return nil, err
		}
		layers = append(layers, coupling)
	case CouplingAffine:
		fn, err := cfg.CouplingFactory(half, numChannels)
		if err != nil {
			return nil, fmt.Errorf("revnet step: coupling factory: %w", err)
		}
		coupling, err := NewAffineCoupling(numChannels, fn)
		if err != nil {
			return nil, err
		}
		layers = append(layers, coupling)
	default:
		return nil, fmt.Errorf("revnet step: %w: unknown coupling %q", ErrConfig, cfg.Coupling)
	}

	return &RevNetStep{NewLayerList(layers...)}, nil
}

// RevNet stacks Depth flow steps at one spatial/channel scale.
type RevNet struct {
	*LayerList
}

// NewRevNet builds a stack of cfg.Depth steps for the given input shape.
func NewRevNet(inputShape tensor.Shape, cfg Config) (*RevNet, error) {
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("revnet: %w: expected 4D input shape, got %v", ErrShape, inputShape)
	}
	numChannels := inputShape[tensor.Channel]
	layers := make([]Layer, 0, cfg.Depth)
	for i := 0; i < cfg.Depth; i++ {
		step, err := NewRevNetStep(numChannels, cfg)
		if err != nil {
			return nil, fmt.Errorf("revnet step %d: %w", i, err)
		}
		layers = append(layers, step)
	}
	return &RevNet{NewLayerList(layers...)}, nil
}

// Codec is the full model: an initial squeeze, then for each scale a RevNet
// followed (on all but the last scale) by a Split, terminated by a Gaussian
// prior over whatever channels remain. Shapes are propagated once through
// the stack at construction.
type Codec struct {
	*LayerList
	inputShape tensor.Shape
}

// NewCodec builds the full model for inputs of the given shape.
func NewCodec(inputShape tensor.Shape, cfg Config) (*Codec, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("codec: %w: expected 4D input shape, got %v", ErrShape, inputShape)
	}

	squeeze, err := NewSqueeze(inputShape, 2)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	layers := []Layer{squeeze}
	shape := squeeze.OutputShape()

	for level := 0; level < cfg.Levels; level++ {
		revnet, err := NewRevNet(shape, cfg)
		if err != nil {
			return nil, fmt.Errorf("codec level %d: %w", level, err)
		}
		layers = append(layers, revnet)

		if level < cfg.Levels-1 {
			split, err := NewSplit(shape, cfg.Rand)
			if err != nil {
				return nil, fmt.Errorf("codec level %d: %w", level, err)
			}
			layers = append(layers, split)
			shape = split.OutputShape()
		}
	}

	prior, err := NewGaussianPrior(shape, cfg.LearnTop, cfg.Rand)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	layers = append(layers, prior)

	return &Codec{
		LayerList:  NewLayerList(layers...),
		inputShape: inputShape.Clone(),
	}, nil
}

// InputShape returns the data shape the codec was built for.
func (c *Codec) InputShape() tensor.Shape {
	return c.inputShape
}

// Score runs the forward pass on x with a fresh objective, returning the
// per-example log-likelihood.
func (c *Codec) Score(x *tensor.Tensor) (Objective, error) {
	if !x.Shape().Equal(c.inputShape) {
		return nil, fmt.Errorf("codec: %w: expected input shape %v, got %v", ErrShape, c.inputShape, x.Shape())
	}
	_, objective, err := c.ForwardAndJacobian(x, NewObjective(x.Shape()[tensor.Batch]))
	if err != nil {
		return nil, err
	}
	return objective, nil
}

// Sample runs the reverse pass from the terminal prior with a fresh
// objective, producing one batch of synthetic data. Any round-trip state a
// preceding forward pass left behind is dropped first, so the latents are
// always drawn fresh; stash replay stays confined to a direct
// ReverseAndJacobian following a forward pass.
func (c *Codec) Sample() (*tensor.Tensor, Objective, error) {
	c.clearStash()
	return c.ReverseAndJacobian(nil, NewObjective(c.inputShape[tensor.Batch]))
}

// BitsPerDim converts a per-example log-likelihood into the mean
// bits-per-dimension of the batch.
func (c *Codec) BitsPerDim(objective Objective) float64 {
	dims := float64(c.inputShape[tensor.Channel] * c.inputShape[tensor.Height] * c.inputShape[tensor.Width])
	var nll float64
	for _, lp := range objective {
		nll += -lp
	}
	nll /= float64(len(objective))
	return nll / (dims * math.Ln2)
}
