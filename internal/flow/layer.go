// Package flow implements an exact-likelihood generative model as a stack of
// invertible transformations over [batch, channel, height, width] tensors.
//
// Every layer is a bijection with a forward map, an exact inverse, and an
// explicit accounting of the log-determinant of its local Jacobian. Running
// the stack forward scores data under the model; running it in reverse from
// a prior draw produces a sample. The change-of-variables correction is
// threaded through both directions as an Objective.
package flow

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/ecreager/glow/internal/tensor"
)

// Objective accumulates per-example log-likelihood and log-determinant
// contributions. It has value semantics: the arithmetic methods return a
// fresh vector, so any retained copy is unaffected by later layers.
type Objective []float64

// NewObjective returns a zero objective for a batch of the given size.
func NewObjective(batch int) Objective {
	return make(Objective, batch)
}

// Clone returns a copy of the objective.
func (o Objective) Clone() Objective {
	c := make(Objective, len(o))
	copy(c, o)
	return c
}

// AddScalar adds the same contribution to every example.
func (o Objective) AddScalar(v float64) Objective {
	c := o.Clone()
	floats.AddConst(v, c)
	return c
}

// AddVec adds a per-example contribution. The vector length must match the
// batch size.
func (o Objective) AddVec(v []float64) Objective {
	if len(v) != len(o) {
		panic(fmt.Sprintf("flow: objective batch %d does not match contribution batch %d", len(o), len(v)))
	}
	c := o.Clone()
	floats.Add(c, v)
	return c
}

// SubVec subtracts a per-example contribution.
func (o Objective) SubVec(v []float64) Objective {
	if len(v) != len(o) {
		panic(fmt.Sprintf("flow: objective batch %d does not match contribution batch %d", len(o), len(v)))
	}
	c := o.Clone()
	floats.Sub(c, v)
	return c
}

// Sum returns the total objective over the batch.
func (o Objective) Sum() float64 {
	return floats.Sum(o)
}

// Layer is the bijection protocol shared by every transformation in the
// stack.
//
// ForwardAndJacobian maps data toward the latent space, adding the layer's
// log-determinant contribution (and any prior log-density) to the objective.
// ReverseAndJacobian is its exact inverse and subtracts the same
// contribution, so a forward pass immediately followed by a reverse pass
// reproduces the input and the original objective up to floating-point
// rounding.
//
// Tensors are nil only at the terminal prior boundary: the prior's forward
// consumes its input and returns nil, and its reverse requires nil.
type Layer interface {
	ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error)
	ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error)
}

// LayerList composes layers in order: forward applies each layer in list
// order, reverse applies them in reverse list order. Nested LayerLists
// compose associatively.
type LayerList struct {
	layers []Layer
}

// NewLayerList creates a composite from the given layers.
func NewLayerList(layers ...Layer) *LayerList {
	return &LayerList{layers: layers}
}

// Layers returns the ordered layers.
func (l *LayerList) Layers() []Layer {
	return l.layers
}

// At returns the i-th layer.
func (l *LayerList) At(i int) Layer {
	return l.layers[i]
}

// ForwardAndJacobian threads (x, objective) through every layer in order.
// The first failure aborts the pass, wrapped with the index and type of the
// failing layer.
func (l *LayerList) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	var err error
	for i, layer := range l.layers {
		x, objective, err = layer.ForwardAndJacobian(x, objective)
		if err != nil {
			return nil, nil, fmt.Errorf("forward layer %d (%T): %w", i, layer, err)
		}
	}
	return x, objective, nil
}

// ReverseAndJacobian threads (y, objective) through every layer in reverse
// order.
func (l *LayerList) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	var err error
	for i := len(l.layers) - 1; i >= 0; i-- {
		layer := l.layers[i]
		y, objective, err = layer.ReverseAndJacobian(y, objective)
		if err != nil {
			return nil, nil, fmt.Errorf("reverse layer %d (%T): %w", i, layer, err)
		}
	}
	return y, objective, nil
}

// modal is implemented by layers whose semantics differ between training and
// evaluation.
type modal interface {
	SetTraining(bool)
}

// stashing is implemented by layers that retain the tensor they consumed on
// the forward pass so an immediately following reverse pass can rebuild the
// exact input.
type stashing interface {
	clearStash()
}

// clearStash drops retained round-trip state from every layer in the subtree.
func (l *LayerList) clearStash() {
	for _, layer := range l.layers {
		if s, ok := layer.(stashing); ok {
			s.clearStash()
		}
	}
}

// SetTraining flips training mode on every mode-aware layer in the subtree.
func (l *LayerList) SetTraining(training bool) {
	for _, layer := range l.layers {
		if m, ok := layer.(modal); ok {
			m.SetTraining(training)
		}
	}
}
