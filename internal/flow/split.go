package flow

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ecreager/glow/internal/nn"
	"github.com/ecreager/glow/internal/tensor"
)

const logSqrt2Pi = 0.9189385332046727417803297364056176 // 0.5 * ln(2*pi)

// diagGaussian is a diagonal Gaussian with per-element mean and log standard
// deviation.
type diagGaussian struct {
	mean  *tensor.Tensor
	logsd *tensor.Tensor
}

// logpPerBatch returns the log-density of x under the Gaussian, summed over
// all but the batch axis.
func (g diagGaussian) logpPerBatch(x *tensor.Tensor) []float64 {
	lp := tensor.Zeros(x.Shape())
	xd, md, sd, out := x.Data(), g.mean.Data(), g.logsd.Data(), lp.Data()
	for i := range out {
		d := xd[i] - md[i]
		invVar := math.Exp(-2 * sd[i])
		out[i] = -logSqrt2Pi - sd[i] - 0.5*d*d*invVar
	}
	return lp.SumPerBatch()
}

// sample draws mean + exp(logsd) * eps with eps ~ N(0, 1).
func (g diagGaussian) sample(rng *rand.Rand) *tensor.Tensor {
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	out := tensor.Zeros(g.mean.Shape())
	md, sd, dst := g.mean.Data(), g.logsd.Data(), out.Data()
	for i := range dst {
		dst[i] = md[i] + math.Exp(sd[i])*unit.Rand()
	}
	return out
}

// Split factors half the channels out of the flow at a scale boundary.
//
// Forward chunks the input into z1, z2, scores z2 under a conditional
// diagonal Gaussian whose mean and log-sigma come from a zero-initialized
// 3x3 convolution over z1, and carries squeeze(z1) into the next scale. The
// consumed z2 is stashed so the immediately following reverse call can
// rebuild the exact input; when no stash is present (the sampling path) the
// reverse draws a fresh z2 from the same conditional prior. Either way the
// reverse subtracts the log-density the forward direction would have added.
type Split struct {
	inputShape tensor.Shape
	head       *nn.Conv2d
	rng        *rand.Rand
	stash      *tensor.Tensor
}

// NewSplit creates a split layer for the given input shape. The channel
// count must be even and the spatial dimensions divisible by 2.
func NewSplit(inputShape tensor.Shape, rng *rand.Rand) (*Split, error) {
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("split: %w: expected 4D input shape, got %v", ErrShape, inputShape)
	}
	c := inputShape[tensor.Channel]
	if c%2 != 0 {
		return nil, fmt.Errorf("split: %w: channel count %d not even", ErrShape, c)
	}
	if inputShape[tensor.Height]%2 != 0 || inputShape[tensor.Width]%2 != 0 {
		return nil, fmt.Errorf("split: %w: spatial dims of %v not divisible by 2", ErrShape, inputShape)
	}
	return &Split{
		inputShape: inputShape.Clone(),
		head:       nn.NewConv2dZeros(c/2, c, 3, 1),
		rng:        rng,
	}, nil
}

// OutputShape returns the shape carried into the next scale:
// half the channels, squeezed by a factor of 2.
func (s *Split) OutputShape() tensor.Shape {
	b, c, h, w := s.inputShape[0], s.inputShape[1], s.inputShape[2], s.inputShape[3]
	return tensor.Shape{b, c * 2, h / 2, w / 2}
}

// prior computes the conditional prior over z2 from z1. The head's output
// interleaves mean and log-sigma channels.
func (s *Split) prior(z1 *tensor.Tensor) diagGaussian {
	h := s.head.Forward(z1)
	return diagGaussian{
		mean:  h.StridedChannels(0, 2),
		logsd: h.StridedChannels(1, 2),
	}
}

// ForwardAndJacobian scores z2 under the conditional prior and squeezes z1
// into the output.
func (s *Split) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if len(x.Shape()) != 4 || !x.Shape().Equal(s.inputShape) {
		return nil, nil, fmt.Errorf("split: %w: expected input shape %v, got %v", ErrShape, s.inputShape, x.Shape())
	}
	z1, z2 := x.Chunk2()
	pz := s.prior(z1)
	objective = objective.AddVec(pz.logpPerBatch(z2))

	out, err := squeezeBCHW(z1, 2)
	if err != nil {
		return nil, nil, err
	}
	s.stash = z2
	return out, objective, nil
}

// ReverseAndJacobian un-squeezes the incoming latent into z1, recovers (or
// re-draws) z2, and subtracts its log-density under the conditional prior.
func (s *Split) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	z1, err := unsqueezeBCHW(y, 2)
	if err != nil {
		return nil, nil, err
	}
	pz := s.prior(z1)

	z2 := s.stash
	if z2 != nil && z2.Shape().Equal(z1.Shape()) {
		s.stash = nil
	} else {
		z2 = pz.sample(s.rng)
	}

	objective = objective.SubVec(pz.logpPerBatch(z2))
	return tensor.Cat2(z1, z2), objective, nil
}

func (s *Split) clearStash() {
	s.stash = nil
}

// String returns a string representation of the layer.
func (s *Split) String() string {
	return fmt.Sprintf("Split(input=%v)", s.inputShape)
}

// GaussianPrior terminates the flow: the forward pass scores the whole
// remaining tensor under a diagonal Gaussian and returns nil; the reverse
// pass starts from nil and produces a draw from the same Gaussian.
//
// With a learned top, the prior's mean and log-sigma come from a
// zero-initialized convolution head (so the model starts as a standard
// normal); otherwise they are fixed to the standard normal. Like Split, the
// forward input is stashed so forward-then-reverse is an exact identity.
type GaussianPrior struct {
	inputShape tensor.Shape
	head       *nn.Conv2d
	rng        *rand.Rand
	stash      *tensor.Tensor
}

// NewGaussianPrior creates the terminal prior over the given shape. When
// learnTop is true the mean and log-sigma are produced by a zero-initialized
// convolution head.
func NewGaussianPrior(inputShape tensor.Shape, learnTop bool, rng *rand.Rand) (*GaussianPrior, error) {
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("gaussian prior: %w: expected 4D input shape, got %v", ErrShape, inputShape)
	}
	p := &GaussianPrior{inputShape: inputShape.Clone(), rng: rng}
	if learnTop {
		c := inputShape[tensor.Channel]
		p.head = nn.NewConv2dZeros(c, 2*c, 3, 1)
	}
	return p, nil
}

// prior builds the top-level Gaussian. The head (when present) maps a zero
// tensor, so it acts as a learned per-position bias for mean and log-sigma.
func (p *GaussianPrior) prior() diagGaussian {
	b, c, h, w := p.inputShape[0], p.inputShape[1], p.inputShape[2], p.inputShape[3]
	var meanLogsd *tensor.Tensor
	if p.head != nil {
		meanLogsd = p.head.Forward(tensor.Zeros(tensor.Shape{b, c, h, w}))
	} else {
		meanLogsd = tensor.Zeros(tensor.Shape{b, 2 * c, h, w})
	}
	mean, logsd := meanLogsd.Chunk2()
	return diagGaussian{mean: mean, logsd: logsd}
}

// ForwardAndJacobian adds the log-density of x under the prior and consumes
// the tensor.
func (p *GaussianPrior) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if x == nil {
		return nil, nil, fmt.Errorf("gaussian prior: %w: forward requires an input tensor", ErrMode)
	}
	if !x.Shape().Equal(p.inputShape) {
		return nil, nil, fmt.Errorf("gaussian prior: %w: expected input shape %v, got %v", ErrShape, p.inputShape, x.Shape())
	}
	pz := p.prior()
	objective = objective.AddVec(pz.logpPerBatch(x))
	p.stash = x
	return nil, objective, nil
}

// ReverseAndJacobian requires a nil input, returns a draw from the prior
// (or the stashed forward input), and subtracts its log-density.
func (p *GaussianPrior) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if y != nil {
		return nil, nil, fmt.Errorf("gaussian prior: %w: reverse requires a nil input, got %v", ErrMode, y.Shape())
	}
	pz := p.prior()

	z := p.stash
	if z != nil {
		p.stash = nil
	} else {
		z = pz.sample(p.rng)
	}

	objective = objective.SubVec(pz.logpPerBatch(z))
	return z, objective, nil
}

func (p *GaussianPrior) clearStash() {
	p.stash = nil
}

// String returns a string representation of the layer.
func (p *GaussianPrior) String() string {
	return fmt.Sprintf("GaussianPrior(input=%v, learntop=%v)", p.inputShape, p.head != nil)
}
