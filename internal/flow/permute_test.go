package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/ecreager/glow/internal/tensor"
)

func TestShuffleRoundTripExact(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s, err := NewShuffle(8, rng)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{3, 8, 4, 4}, rng)
	obj := NewObjective(3)

	y, yObj, err := s.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	assert.Equal(t, obj.Sum(), yObj.Sum(), "permutation changed the objective")

	back, backObj, err := s.ReverseAndJacobian(y, yObj)
	require.NoError(t, err)
	assert.True(t, back.Equal(x), "perm then rev is not the integer index identity")
	assert.Equal(t, obj.Sum(), backObj.Sum())
}

func TestShuffleInversePermutation(t *testing.T) {
	perm := []int{2, 0, 3, 1}
	rev := invertPerm(perm)
	for i, p := range perm {
		assert.Equal(t, i, rev[p], "rev[perm[i]] != i")
	}
}

func TestReverseIsSelfInverse(t *testing.T) {
	r, err := NewReverse(6)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{2, 6, 3, 3}, rand.New(rand.NewSource(6)))
	obj := NewObjective(2)

	y, _, err := r.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	// Applying the forward map twice restores the input: the channel
	// reversal is its own inverse.
	twice, _, err := r.ForwardAndJacobian(y, obj)
	require.NoError(t, err)
	assert.True(t, twice.Equal(x))

	back, _, err := r.ReverseAndJacobian(y, obj)
	require.NoError(t, err)
	assert.True(t, back.Equal(x))
}

func TestReverseReversesChannels(t *testing.T) {
	r, err := NewReverse(3)
	require.NoError(t, err)

	x, err := tensor.FromSlice([]float64{1, 2, 3}, tensor.Shape{1, 3, 1, 1})
	require.NoError(t, err)

	y, _, err := r.ForwardAndJacobian(x, NewObjective(1))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, y.Data())
}

func TestInvertible1x1ConvOrthogonalInit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c, err := NewInvertible1x1Conv(4, rng)
	require.NoError(t, err)

	// Rotation init: |det W| = 1, so the initial contribution is zero for
	// any input shape.
	assert.InDelta(t, 0.0, c.logAbsDet(), 1e-10)

	x := tensor.Randn(tensor.Shape{2, 4, 8, 8}, rng)
	_, obj, err := c.ForwardAndJacobian(x, NewObjective(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, obj.Sum(), 1e-8)
}

func TestInvertible1x1ConvRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	c, err := NewInvertible1x1Conv(6, rng)
	require.NoError(t, err)

	// Perturb the weight away from orthogonality so the determinant term is
	// exercised too.
	c.Weight().Set(0, 0, c.Weight().At(0, 0)*1.5+0.3)

	x := tensor.Randn(tensor.Shape{2, 6, 4, 4}, rng)
	obj := NewObjective(2)

	y, yObj, err := c.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	back, backObj, err := c.ReverseAndJacobian(y, yObj)
	require.NoError(t, err)

	for i, v := range back.Data() {
		assert.InDelta(t, x.Data()[i], v, 1e-9, "round trip diverged at %d", i)
	}
	assert.InDelta(t, 0.0, backObj.Sum(), 1e-9, "objective contributions did not cancel")
}

func TestInvertible1x1ConvJacobianScalesWithSpatialSize(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	c, err := NewInvertible1x1Conv(2, rng)
	require.NoError(t, err)
	// Double one row: |det| becomes 2, log|det| = ln 2.
	c.Weight().Set(0, 0, 2*c.Weight().At(0, 0))
	c.Weight().Set(0, 1, 2*c.Weight().At(0, 1))

	logDet := c.logAbsDet()

	x := tensor.Randn(tensor.Shape{1, 2, 4, 6}, rng)
	_, obj, err := c.ForwardAndJacobian(x, NewObjective(1))
	require.NoError(t, err)
	// One correction per spatial position.
	assert.InDelta(t, logDet*24, obj[0], 1e-9)
}

func TestInvertible1x1ConvMixMatchesMatrixProduct(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	c, err := NewInvertible1x1Conv(3, rng)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{1, 3, 1, 1}, rng)
	y, _, err := c.ForwardAndJacobian(x, NewObjective(1))
	require.NoError(t, err)

	// With a single pixel the layer is exactly y = W x.
	want := mat.NewVecDense(3, nil)
	want.MulVec(c.Weight(), mat.NewVecDense(3, x.Data()))
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want.AtVec(i), y.Data()[i], 1e-12)
	}
}

func TestPermutationSignSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	c, err := NewInvertible1x1Conv(4, rng)
	require.NoError(t, err)
	c.Weight().Set(1, 1, c.Weight().At(1, 1)+0.7)

	x := tensor.Randn(tensor.Shape{2, 4, 3, 3}, rng)

	y, fwd, err := c.ForwardAndJacobian(x, NewObjective(2))
	require.NoError(t, err)
	_, rev, err := c.ReverseAndJacobian(y, NewObjective(2))
	require.NoError(t, err)

	// Equal magnitude, opposite sign.
	for i := range fwd {
		assert.InDelta(t, -fwd[i], rev[i], 1e-9)
	}
}
