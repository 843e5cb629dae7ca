package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

func TestSqueezeShapeLaw(t *testing.T) {
	s, err := NewSqueeze(tensor.Shape{2, 4, 8, 8}, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 16, 4, 4}, s.OutputShape())

	x := tensor.Randn(tensor.Shape{2, 4, 8, 8}, rand.New(rand.NewSource(1)))
	y, _, err := s.ForwardAndJacobian(x, NewObjective(2))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 16, 4, 4}, y.Shape())
}

func TestSqueezeRoundTripBitIdentical(t *testing.T) {
	for _, factor := range []int{2, 4} {
		s, err := NewSqueeze(tensor.Shape{2, 3, 8, 8}, factor)
		require.NoError(t, err)

		x := tensor.Randn(tensor.Shape{2, 3, 8, 8}, rand.New(rand.NewSource(uint64(factor))))
		obj := NewObjective(2)

		y, yObj, err := s.ForwardAndJacobian(x, obj)
		require.NoError(t, err)
		assert.Equal(t, obj.Sum(), yObj.Sum(), "pure relabeling touched the objective")

		back, backObj, err := s.ReverseAndJacobian(y, yObj)
		require.NoError(t, err)
		assert.True(t, back.Equal(x), "factor %d round trip is not bit-identical", factor)
		assert.Equal(t, obj.Sum(), backObj.Sum())
	}
}

func TestSqueezeIndexMapping(t *testing.T) {
	// 1 channel, 2x2 image, factor 2: the four pixels become the four
	// channels of a 1x1 image in row-major block order.
	x, err := tensor.FromSlice([]float64{
		1, 2,
		3, 4,
	}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	y, err := squeezeBCHW(x, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 1, 1}, y.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, y.Data())
}

func TestSqueezeRejectsIndivisibleSpatialDims(t *testing.T) {
	_, err := NewSqueeze(tensor.Shape{1, 1, 5, 4}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))

	// A valid layer still rejects mismatched inputs at call time.
	s, err := NewSqueeze(tensor.Shape{1, 1, 4, 4}, 2)
	require.NoError(t, err)
	_, _, err = s.ForwardAndJacobian(tensor.Zeros(tensor.Shape{1, 1, 5, 5}), NewObjective(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestSqueezeRejectsBadFactor(t *testing.T) {
	_, err := NewSqueeze(tensor.Shape{1, 1, 4, 4}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestUnsqueezeRejectsIndivisibleChannels(t *testing.T) {
	s, err := NewSqueeze(tensor.Shape{1, 2, 4, 4}, 2)
	require.NoError(t, err)

	_, _, err = s.ReverseAndJacobian(tensor.Zeros(tensor.Shape{1, 6, 2, 2}), NewObjective(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape))

	_, _, err = s.ReverseAndJacobian(tensor.Zeros(tensor.Shape{1, 2, 2, 2}), NewObjective(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShape), "channel count below factor^2 must be a shape error")
}
