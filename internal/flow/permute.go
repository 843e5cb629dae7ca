package flow

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/ecreager/glow/internal/tensor"
)

// Shuffle applies a fixed random permutation of the channel axis, generated
// once at construction. The exact inverse permutation is precomputed so the
// reverse pass is an integer index identity. Permutations are
// volume-preserving, so the objective is untouched.
type Shuffle struct {
	perm []int
	rev  []int
}

// NewShuffle creates a channel shuffle over numChannels channels using the
// supplied generator.
func NewShuffle(numChannels int, rng *rand.Rand) (*Shuffle, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("shuffle: %w: channel count %d", ErrConfig, numChannels)
	}
	perm := rng.Perm(numChannels)
	return &Shuffle{perm: perm, rev: invertPerm(perm)}, nil
}

// invertPerm builds rev such that rev[perm[i]] = i.
func invertPerm(perm []int) []int {
	rev := make([]int, len(perm))
	for i, p := range perm {
		rev[p] = i
	}
	return rev
}

func (s *Shuffle) checkChannels(x *tensor.Tensor) error {
	if len(x.Shape()) != 4 {
		return fmt.Errorf("shuffle: %w: expected 4D input, got %v", ErrShape, x.Shape())
	}
	if x.Shape()[tensor.Channel] != len(s.perm) {
		return fmt.Errorf("shuffle: %w: expected %d channels, got %d", ErrShape, len(s.perm), x.Shape()[tensor.Channel])
	}
	return nil
}

// ForwardAndJacobian permutes channels by the stored permutation.
func (s *Shuffle) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := s.checkChannels(x); err != nil {
		return nil, nil, err
	}
	return x.SelectChannels(s.perm), objective, nil
}

// ReverseAndJacobian permutes channels by the stored inverse permutation.
func (s *Shuffle) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := s.checkChannels(y); err != nil {
		return nil, nil, err
	}
	return y.SelectChannels(s.rev), objective, nil
}

// String returns a string representation of the layer.
func (s *Shuffle) String() string {
	return fmt.Sprintf("Shuffle(channels=%d)", len(s.perm))
}

// Reverse is the Shuffle specialization whose permutation is the channel
// reversal. The reversal is its own inverse.
type Reverse struct {
	Shuffle
}

// NewReverse creates a channel reversal over numChannels channels.
func NewReverse(numChannels int) (*Reverse, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("reverse: %w: channel count %d", ErrConfig, numChannels)
	}
	perm := make([]int, numChannels)
	for i := range perm {
		perm[i] = numChannels - 1 - i
	}
	return &Reverse{Shuffle{perm: perm, rev: perm}}, nil
}

// String returns a string representation of the layer.
func (r *Reverse) String() string {
	return fmt.Sprintf("Reverse(channels=%d)", len(r.perm))
}

// Invertible1x1Conv mixes channels with a learned square matrix W applied
// independently at every spatial position, as in Glow. The forward objective
// contribution is log|det W| for each of the height*width positions; the
// reverse applies W^-1 and subtracts the same quantity.
//
// W is initialized to a random rotation (the Q factor of a QR factorization
// of a random normal matrix), so |det W| = 1 and the initial contribution is
// exactly zero.
type Invertible1x1Conv struct {
	numChannels int
	weight      *mat.Dense
}

// NewInvertible1x1Conv creates the layer with an orthogonal initial weight.
func NewInvertible1x1Conv(numChannels int, rng *rand.Rand) (*Invertible1x1Conv, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("invertible 1x1 conv: %w: channel count %d", ErrConfig, numChannels)
	}

	raw := make([]float64, numChannels*numChannels)
	for i := range raw {
		raw[i] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(numChannels, numChannels, raw))
	weight := mat.NewDense(numChannels, numChannels, nil)
	qr.QTo(weight)

	return &Invertible1x1Conv{numChannels: numChannels, weight: weight}, nil
}

// Weight returns the mixing matrix.
func (c *Invertible1x1Conv) Weight() *mat.Dense {
	return c.weight
}

func (c *Invertible1x1Conv) check(x *tensor.Tensor) error {
	if len(x.Shape()) != 4 {
		return fmt.Errorf("invertible 1x1 conv: %w: expected 4D input, got %v", ErrShape, x.Shape())
	}
	if x.Shape()[tensor.Channel] != c.numChannels {
		return fmt.Errorf("invertible 1x1 conv: %w: expected %d channels, got %d",
			ErrShape, c.numChannels, x.Shape()[tensor.Channel])
	}
	return nil
}

// logAbsDet returns log|det W| via LU factorization.
func (c *Invertible1x1Conv) logAbsDet() float64 {
	var lu mat.LU
	lu.Factorize(c.weight)
	logDet, _ := lu.LogDet()
	return logDet
}

// mix applies the channel-mixing matrix m at every spatial position: each
// example is viewed as a (channels x height*width) matrix and left-multiplied.
func (c *Invertible1x1Conv) mix(m *mat.Dense, x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	b, ch := shape[tensor.Batch], shape[tensor.Channel]
	spatial := shape[tensor.Height] * shape[tensor.Width]
	out := tensor.Zeros(shape)
	for bi := 0; bi < b; bi++ {
		src := mat.NewDense(ch, spatial, x.Data()[bi*ch*spatial:(bi+1)*ch*spatial])
		dst := mat.NewDense(ch, spatial, out.Data()[bi*ch*spatial:(bi+1)*ch*spatial])
		dst.Mul(m, src)
	}
	return out
}

// ForwardAndJacobian mixes channels by W and adds log|det W| * h * w.
func (c *Invertible1x1Conv) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := c.check(x); err != nil {
		return nil, nil, err
	}
	spatial := x.Shape()[tensor.Height] * x.Shape()[tensor.Width]
	objective = objective.AddScalar(c.logAbsDet() * float64(spatial))
	return c.mix(c.weight, x), objective, nil
}

// ReverseAndJacobian mixes channels by W^-1 and subtracts log|det W| * h * w.
func (c *Invertible1x1Conv) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := c.check(y); err != nil {
		return nil, nil, err
	}
	var inv mat.Dense
	if err := inv.Inverse(c.weight); err != nil {
		return nil, nil, fmt.Errorf("invertible 1x1 conv: weight is singular: %w", err)
	}
	spatial := y.Shape()[tensor.Height] * y.Shape()[tensor.Width]
	objective = objective.AddScalar(-c.logAbsDet() * float64(spatial))
	return c.mix(&inv, y), objective, nil
}

// String returns a string representation of the layer.
func (c *Invertible1x1Conv) String() string {
	return fmt.Sprintf("Invertible1x1Conv(channels=%d)", c.numChannels)
}
