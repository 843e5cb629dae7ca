package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

func TestObjectiveValueSemantics(t *testing.T) {
	o := NewObjective(2)
	o2 := o.AddScalar(3)

	assert.Equal(t, 0.0, o.Sum(), "original objective mutated")
	assert.Equal(t, 6.0, o2.Sum())

	o3 := o2.AddVec([]float64{1, -1})
	assert.InDelta(t, 6.0, o3.Sum(), 1e-12)
	assert.InDelta(t, 4.0, o3[0], 1e-12)
	assert.InDelta(t, 2.0, o3[1], 1e-12)

	o4 := o3.SubVec([]float64{1, -1})
	assert.InDelta(t, o2[0], o4[0], 1e-12)
	assert.InDelta(t, o2[1], o4[1], 1e-12)
}

func TestObjectiveBatchMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("batch mismatch not rejected")
		}
	}()
	NewObjective(2).AddVec([]float64{1, 2, 3})
}

func TestLayerListComposesInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s1, err := NewShuffle(6, rng)
	require.NoError(t, err)
	s2, err := NewReverse(6)
	require.NoError(t, err)

	list := NewLayerList(s1, s2)
	x := tensor.Randn(tensor.Shape{2, 6, 4, 4}, rng)
	obj := NewObjective(2)

	y, yObj, err := list.ForwardAndJacobian(x, obj)
	require.NoError(t, err)

	// Same result as applying the layers by hand, in order.
	mid, _, err := s1.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	want, _, err := s2.ForwardAndJacobian(mid, obj)
	require.NoError(t, err)
	assert.True(t, y.Equal(want))
	assert.Equal(t, 0.0, yObj.Sum())

	back, backObj, err := list.ReverseAndJacobian(y, yObj)
	require.NoError(t, err)
	assert.True(t, back.Equal(x), "forward-then-reverse is not the identity")
	assert.Equal(t, 0.0, backObj.Sum())
}

func TestLayerListNestsAssociatively(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a, err := NewShuffle(4, rng)
	require.NoError(t, err)
	b, err := NewReverse(4)
	require.NoError(t, err)
	c, err := NewShuffle(4, rng)
	require.NoError(t, err)

	flat := NewLayerList(a, b, c)
	nested := NewLayerList(NewLayerList(a, b), c)

	x := tensor.Randn(tensor.Shape{1, 4, 2, 2}, rng)
	obj := NewObjective(1)

	y1, _, err := flat.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	y2, _, err := nested.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	assert.True(t, y1.Equal(y2), "nested composition differs from flat composition")

	b1, _, err := flat.ReverseAndJacobian(y1, obj)
	require.NoError(t, err)
	b2, _, err := nested.ReverseAndJacobian(y1, obj)
	require.NoError(t, err)
	assert.True(t, b1.Equal(b2))
	assert.True(t, b1.Equal(x))
}

func TestLayerListWrapsLayerErrors(t *testing.T) {
	s, err := NewShuffle(4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	list := NewLayerList(s)

	// Wrong channel count.
	x := tensor.Zeros(tensor.Shape{1, 6, 2, 2})
	_, _, err = list.ForwardAndJacobian(x, NewObjective(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))
	assert.Contains(t, err.Error(), "layer 0")
}

func TestLayerListSetTrainingReachesNestedLayers(t *testing.T) {
	bn, err := NewBatchNorm(4)
	require.NoError(t, err)
	inner := NewLayerList(bn)
	outer := NewLayerList(inner)

	require.True(t, bn.Training())
	outer.SetTraining(false)
	assert.False(t, bn.Training(), "SetTraining did not reach nested layer")
	outer.SetTraining(true)
	assert.True(t, bn.Training())
}
