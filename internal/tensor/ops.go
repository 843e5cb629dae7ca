package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

func (t *Tensor) mustSameShape(other *Tensor, op string) {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("tensor: %s requires matching shapes, got %v and %v", op, t.shape, other.shape))
	}
}

// Add performs element-wise addition. Shapes must match exactly.
func (t *Tensor) Add(other *Tensor) *Tensor {
	t.mustSameShape(other, "Add")
	out := New(t.shape)
	floats.AddTo(out.data, t.data, other.data)
	return out
}

// Sub performs element-wise subtraction. Shapes must match exactly.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	t.mustSameShape(other, "Sub")
	out := New(t.shape)
	floats.SubTo(out.data, t.data, other.data)
	return out
}

// Mul performs element-wise multiplication. Shapes must match exactly.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	t.mustSameShape(other, "Mul")
	out := New(t.shape)
	floats.MulTo(out.data, t.data, other.data)
	return out
}

// Div performs element-wise division. Shapes must match exactly.
func (t *Tensor) Div(other *Tensor) *Tensor {
	t.mustSameShape(other, "Div")
	out := New(t.shape)
	floats.DivTo(out.data, t.data, other.data)
	return out
}

// AddScalar adds a scalar to every element.
func (t *Tensor) AddScalar(scalar float64) *Tensor {
	out := t.Clone()
	floats.AddConst(scalar, out.data)
	return out
}

// MulScalar multiplies every element by a scalar.
func (t *Tensor) MulScalar(scalar float64) *Tensor {
	out := t.Clone()
	floats.Scale(scalar, out.data)
	return out
}

// Neg negates every element.
func (t *Tensor) Neg() *Tensor {
	return t.MulScalar(-1)
}

// Exp applies the exponential function element-wise.
func (t *Tensor) Exp() *Tensor {
	return t.apply(math.Exp)
}

// Log applies the natural logarithm element-wise.
func (t *Tensor) Log() *Tensor {
	return t.apply(math.Log)
}

// Sigmoid applies the logistic function element-wise.
func (t *Tensor) Sigmoid() *Tensor {
	return t.apply(func(v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	})
}

func (t *Tensor) apply(f func(float64) float64) *Tensor {
	out := New(t.shape)
	for i, v := range t.data {
		out.data[i] = f(v)
	}
	return out
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// SumPerBatch sums over all but the leading (batch) axis, returning one
// value per example.
func (t *Tensor) SumPerBatch() []float64 {
	if len(t.shape) < 1 {
		panic("tensor: SumPerBatch requires at least 1 dimension")
	}
	batch := t.shape[0]
	per := t.NumElements() / batch
	out := make([]float64, batch)
	for b := 0; b < batch; b++ {
		out[b] = floats.Sum(t.data[b*per : (b+1)*per])
	}
	return out
}
