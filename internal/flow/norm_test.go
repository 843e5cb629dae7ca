package flow

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

func TestBatchNormTrainingNormalizes(t *testing.T) {
	bn, err := NewBatchNorm(2)
	require.NoError(t, err)

	x := tensor.Randn(tensor.Shape{8, 2, 4, 4}, rand.New(rand.NewSource(1)))
	y, obj, err := bn.ForwardAndJacobian(x, NewObjective(8))
	require.NoError(t, err)

	// Per-channel output statistics: mean ~0, variance ~1.
	mean, variance := bn.batchStats(y)
	for ci := 0; ci < 2; ci++ {
		assert.InDelta(t, 0.0, mean[ci], 1e-9)
		assert.InDelta(t, 1.0, variance[ci], 1e-4)
	}

	// Objective contribution is identical for every example.
	for i := 1; i < len(obj); i++ {
		assert.Equal(t, obj[0], obj[i])
	}
}

func TestBatchNormUpdatesRunningStats(t *testing.T) {
	bn, err := NewBatchNorm(1)
	require.NoError(t, err)

	x := tensor.Full(tensor.Shape{4, 1, 2, 2}, 10)
	_, _, err = bn.ForwardAndJacobian(x, NewObjective(4))
	require.NoError(t, err)

	// EMA with momentum 0.1 from initial (0, 1) toward (10, ~eps).
	assert.InDelta(t, 1.0, bn.runningMean[0], 1e-12)
	assert.InDelta(t, 0.9+0.1*bn.eps, bn.runningVar[0], 1e-9)

	// Eval mode must not touch the running state.
	bn.SetTraining(false)
	before := bn.runningMean[0]
	_, _, err = bn.ForwardAndJacobian(x, NewObjective(4))
	require.NoError(t, err)
	assert.Equal(t, before, bn.runningMean[0])
}

func TestBatchNormReverseRequiresEvalMode(t *testing.T) {
	bn, err := NewBatchNorm(2)
	require.NoError(t, err)

	y := tensor.Zeros(tensor.Shape{2, 2, 2, 2})
	_, _, err = bn.ReverseAndJacobian(y, NewObjective(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMode))
	assert.False(t, errors.Is(err, ErrShape), "mode misuse must not look like a shape error")
}

func TestBatchNormEvalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	bn, err := NewBatchNorm(3)
	require.NoError(t, err)

	// Accumulate some running statistics first.
	for i := 0; i < 10; i++ {
		_, _, err = bn.ForwardAndJacobian(tensor.Randn(tensor.Shape{4, 3, 4, 4}, rng).AddScalar(2), NewObjective(4))
		require.NoError(t, err)
	}

	bn.SetTraining(false)
	x := tensor.Randn(tensor.Shape{4, 3, 4, 4}, rng)
	obj := NewObjective(4)

	y, yObj, err := bn.ForwardAndJacobian(x, obj)
	require.NoError(t, err)
	back, backObj, err := bn.ReverseAndJacobian(y, yObj)
	require.NoError(t, err)

	for i, v := range back.Data() {
		assert.InDelta(t, x.Data()[i], v, 1e-9)
	}
	assert.InDelta(t, 0.0, backObj.Sum(), 1e-9, "objective contributions did not cancel")
}

func TestBatchNormJacobianValue(t *testing.T) {
	bn, err := NewBatchNorm(1)
	require.NoError(t, err)
	bn.SetTraining(false)
	bn.runningVar[0] = 4.0 // std 2, log(1/std) = -ln 2

	x := tensor.Zeros(tensor.Shape{1, 1, 3, 3})
	_, obj, err := bn.ForwardAndJacobian(x, NewObjective(1))
	require.NoError(t, err)
	// One correction per spatial position.
	assert.InDelta(t, -0.5*math.Log(4.0+bn.eps)*9, obj[0], 1e-9)
}

func TestActNormIsUnimplemented(t *testing.T) {
	_, err := NewActNorm(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
	assert.False(t, errors.Is(err, ErrShape), "unimplemented must be distinct from shape errors")
	assert.False(t, errors.Is(err, ErrConfig))
}
