package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

func TestConv2dIdentityKernel(t *testing.T) {
	// A 1x1 kernel with weight 1 is the identity.
	conv := NewConv2dZeros(1, 1, 1, 0)
	conv.Weight().Set(1.0, 0, 0, 0, 0)

	x, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	y := conv.Forward(x)
	assert.True(t, y.Equal(x), "1x1 identity kernel should preserve input")
}

func TestConv2dSamePaddingShape(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	conv := NewConv2d(2, 6, 3, 1, rng)

	x := tensor.Randn(tensor.Shape{3, 2, 8, 8}, rng)
	y := conv.Forward(x)
	assert.Equal(t, tensor.Shape{3, 6, 8, 8}, y.Shape())
}

func TestConv2dKnownValues(t *testing.T) {
	// 3x3 all-ones kernel on a constant image sums the visible neighborhood.
	conv := NewConv2dZeros(1, 1, 3, 1)
	for i := range conv.Weight().Data() {
		conv.Weight().Data()[i] = 1
	}

	x := tensor.Full(tensor.Shape{1, 1, 3, 3}, 1)
	y := conv.Forward(x)

	// Center pixel sees all 9 inputs, corners see 4, edges see 6.
	assert.InDelta(t, 9.0, y.At(0, 0, 1, 1), 1e-12)
	assert.InDelta(t, 4.0, y.At(0, 0, 0, 0), 1e-12)
	assert.InDelta(t, 6.0, y.At(0, 0, 0, 1), 1e-12)
}

func TestConv2dBias(t *testing.T) {
	conv := NewConv2dZeros(1, 2, 3, 1)
	conv.Bias().Set(0.5, 0)
	conv.Bias().Set(-1.5, 1)

	x := tensor.Zeros(tensor.Shape{1, 1, 4, 4})
	y := conv.Forward(x)
	assert.InDelta(t, 0.5, y.At(0, 0, 2, 2), 1e-12)
	assert.InDelta(t, -1.5, y.At(0, 1, 2, 2), 1e-12)
}

func TestConv2dZerosOutputsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	conv := NewConv2dZeros(4, 8, 3, 1)

	x := tensor.Randn(tensor.Shape{2, 4, 6, 6}, rng)
	y := conv.Forward(x)
	for _, v := range y.Data() {
		require.Zero(t, v)
	}
}

func TestConvNetContract(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	net := NewConvNet(2, 4, 16, rng)

	assert.Equal(t, 2, net.InChannels())
	assert.Equal(t, 4, net.OutChannels())

	x := tensor.Randn(tensor.Shape{1, 2, 8, 8}, rng)
	y, err := net.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 8, 8}, y.Shape())

	// Zero-initialized output stage: a fresh net maps everything to zero.
	for _, v := range y.Data() {
		require.Zero(t, v)
	}

	_, err = net.Apply(tensor.Zeros(tensor.Shape{1, 3, 8, 8}))
	assert.Error(t, err, "wrong channel count should be rejected")
}

func TestReLU(t *testing.T) {
	x, err := tensor.FromSlice([]float64{-2, -0.5, 0, 1.5}, tensor.Shape{4})
	require.NoError(t, err)
	y := relu(x)
	assert.Equal(t, []float64{0, 0, 0, 1.5}, y.Data())
	// Input untouched.
	assert.Equal(t, -2.0, x.At(0))
}
