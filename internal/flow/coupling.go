package flow

import (
	"fmt"

	"github.com/ecreager/glow/internal/tensor"
)

// CouplingFunc is the externally supplied differentiable mapping used inside
// coupling layers. The flow core depends only on its channel contract: it
// consumes InChannels channels and produces OutChannels channels at the same
// spatial resolution. Its internals, parameters, and training are the
// caller's business.
type CouplingFunc interface {
	Apply(x *tensor.Tensor) (*tensor.Tensor, error)
	InChannels() int
	OutChannels() int
}

// AdditiveCoupling shifts the second half of the channels by a function of
// the first half: z2' = z2 + f(z1). The shift has unit determinant, so the
// objective is untouched in both directions.
type AdditiveCoupling struct {
	numChannels int
	fn          CouplingFunc
}

// NewAdditiveCoupling creates an additive coupling over an even number of
// channels. fn must map numChannels/2 channels to numChannels/2 channels.
func NewAdditiveCoupling(numChannels int, fn CouplingFunc) (*AdditiveCoupling, error) {
	if numChannels%2 != 0 {
		return nil, fmt.Errorf("additive coupling: %w: channel count %d not even", ErrShape, numChannels)
	}
	half := numChannels / 2
	if fn.InChannels() != half || fn.OutChannels() != half {
		return nil, fmt.Errorf("additive coupling: %w: coupling func maps %d->%d channels, need %d->%d",
			ErrConfig, fn.InChannels(), fn.OutChannels(), half, half)
	}
	return &AdditiveCoupling{numChannels: numChannels, fn: fn}, nil
}

func checkCouplingInput(name string, x *tensor.Tensor, numChannels int) error {
	if len(x.Shape()) != 4 {
		return fmt.Errorf("%s: %w: expected 4D input, got %v", name, ErrShape, x.Shape())
	}
	if x.Shape()[tensor.Channel] != numChannels {
		return fmt.Errorf("%s: %w: expected %d channels, got %d", name, ErrShape, numChannels, x.Shape()[tensor.Channel])
	}
	return nil
}

// ForwardAndJacobian computes z2' = z2 + f(z1).
func (a *AdditiveCoupling) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := checkCouplingInput("additive coupling", x, a.numChannels); err != nil {
		return nil, nil, err
	}
	z1, z2 := x.Chunk2()
	shift, err := a.fn.Apply(z1)
	if err != nil {
		return nil, nil, fmt.Errorf("additive coupling: coupling func: %w", err)
	}
	return tensor.Cat2(z1, z2.Add(shift)), objective, nil
}

// ReverseAndJacobian computes z2 = z2' - f(z1).
func (a *AdditiveCoupling) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := checkCouplingInput("additive coupling", y, a.numChannels); err != nil {
		return nil, nil, err
	}
	z1, z2 := y.Chunk2()
	shift, err := a.fn.Apply(z1)
	if err != nil {
		return nil, nil, fmt.Errorf("additive coupling: coupling func: %w", err)
	}
	return tensor.Cat2(z1, z2.Sub(shift)), objective, nil
}

// String returns a string representation of the layer.
func (a *AdditiveCoupling) String() string {
	return fmt.Sprintf("AdditiveCoupling(channels=%d)", a.numChannels)
}

// AffineCoupling rescales and shifts the second half of the channels
// conditioned on the first half. The coupling function produces an
// alternating interleave of shift and pre-scale channels;
// scale = sigmoid(pre-scale + 2), which biases a freshly initialized layer
// toward scale 1 so early training stays stable.
//
// Forward: z2' = (z2 + shift) * scale, objective += sum(log scale).
// Reverse: z2 = z2'/scale - shift, objective -= sum(log scale).
type AffineCoupling struct {
	numChannels int
	fn          CouplingFunc
}

// NewAffineCoupling creates an affine coupling over an even number of
// channels. fn must map numChannels/2 channels to numChannels channels
// (a shift/pre-scale pair per transformed channel).
func NewAffineCoupling(numChannels int, fn CouplingFunc) (*AffineCoupling, error) {
	if numChannels%2 != 0 {
		return nil, fmt.Errorf("affine coupling: %w: channel count %d not even", ErrShape, numChannels)
	}
	half := numChannels / 2
	if fn.InChannels() != half || fn.OutChannels() != 2*half {
		return nil, fmt.Errorf("affine coupling: %w: coupling func maps %d->%d channels, need %d->%d",
			ErrConfig, fn.InChannels(), fn.OutChannels(), half, 2*half)
	}
	return &AffineCoupling{numChannels: numChannels, fn: fn}, nil
}

// shiftAndScale runs the coupling function on z1 and unpacks the interleaved
// shift/scale channels.
func (a *AffineCoupling) shiftAndScale(z1 *tensor.Tensor) (shift, scale *tensor.Tensor, err error) {
	h, err := a.fn.Apply(z1)
	if err != nil {
		return nil, nil, fmt.Errorf("affine coupling: coupling func: %w", err)
	}
	shift = h.StridedChannels(0, 2)
	scale = h.StridedChannels(1, 2).AddScalar(2).Sigmoid()
	return shift, scale, nil
}

// ForwardAndJacobian computes z2' = (z2 + shift) * scale and adds
// sum(log scale) per example.
func (a *AffineCoupling) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := checkCouplingInput("affine coupling", x, a.numChannels); err != nil {
		return nil, nil, err
	}
	z1, z2 := x.Chunk2()
	shift, scale, err := a.shiftAndScale(z1)
	if err != nil {
		return nil, nil, err
	}
	z2 = z2.Add(shift).Mul(scale)
	objective = objective.AddVec(scale.Log().SumPerBatch())
	return tensor.Cat2(z1, z2), objective, nil
}

// ReverseAndJacobian computes z2 = z2'/scale - shift and subtracts
// sum(log scale) per example.
func (a *AffineCoupling) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := checkCouplingInput("affine coupling", y, a.numChannels); err != nil {
		return nil, nil, err
	}
	z1, z2 := y.Chunk2()
	shift, scale, err := a.shiftAndScale(z1)
	if err != nil {
		return nil, nil, err
	}
	z2 = z2.Div(scale).Sub(shift)
	objective = objective.SubVec(scale.Log().SumPerBatch())
	return tensor.Cat2(z1, z2), objective, nil
}

// String returns a string representation of the layer.
func (a *AffineCoupling) String() string {
	return fmt.Sprintf("AffineCoupling(channels=%d)", a.numChannels)
}
