// Package nn implements the convolutional building blocks used by the flow
// layers: a plain 2D convolution, its zero-initialized variant (used for
// prior heads so a freshly built model starts at the identity), and a small
// conv net satisfying the coupling-function contract.
package nn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

// Conv2d is a 2D convolutional layer with stride 1.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, k, k]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, height + 2*padding - k + 1, width + 2*padding - k + 1]
//
// With padding = (k-1)/2 the spatial dimensions are preserved, which is the
// only configuration the flow layers use.
type Conv2d struct {
	inChannels  int
	outChannels int
	kernel      int
	padding     int

	weight *tensor.Tensor
	bias   *tensor.Tensor
}

// NewConv2d creates a convolutional layer with Xavier-initialized weights
// and zero bias.
func NewConv2d(inChannels, outChannels, kernel, padding int, rng *rand.Rand) *Conv2d {
	c := newConv2d(inChannels, outChannels, kernel, padding)

	// Xavier/Glorot bound: sqrt(6 / (fan_in + fan_out))
	fanIn := inChannels * kernel * kernel
	fanOut := outChannels * kernel * kernel
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := c.weight.Data()
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return c
}

// NewConv2dZeros creates a convolutional layer with all-zero weights and
// bias. Zero initialization makes the layer output exactly zero regardless
// of input, so prior heads built on it start as a standard normal.
func NewConv2dZeros(inChannels, outChannels, kernel, padding int) *Conv2d {
	return newConv2d(inChannels, outChannels, kernel, padding)
}

func newConv2d(inChannels, outChannels, kernel, padding int) *Conv2d {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernel <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", kernel))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}
	return &Conv2d{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernel:      kernel,
		padding:     padding,
		weight:      tensor.Zeros(tensor.Shape{outChannels, inChannels, kernel, kernel}),
		bias:        tensor.Zeros(tensor.Shape{outChannels}),
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2d) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[tensor.Channel] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", shape[tensor.Channel], c.inChannels))
	}

	b, h, w := shape[tensor.Batch], shape[tensor.Height], shape[tensor.Width]
	outH := h + 2*c.padding - c.kernel + 1
	outW := w + 2*c.padding - c.kernel + 1
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv2d: kernel %d does not fit input %v with padding %d", c.kernel, shape, c.padding))
	}

	out := tensor.Zeros(tensor.Shape{b, c.outChannels, outH, outW})
	in := input.Data()
	weights := c.weight.Data()
	biases := c.bias.Data()
	dst := out.Data()

	inStride := h * w
	outStride := outH * outW
	kk := c.kernel * c.kernel

	for bi := 0; bi < b; bi++ {
		for oc := 0; oc < c.outChannels; oc++ {
			base := (bi*c.outChannels + oc) * outStride
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					acc := biases[oc]
					for ic := 0; ic < c.inChannels; ic++ {
						wBase := (oc*c.inChannels + ic) * kk
						iBase := (bi*c.inChannels + ic) * inStride
						for ky := 0; ky < c.kernel; ky++ {
							iy := oy + ky - c.padding
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < c.kernel; kx++ {
								ix := ox + kx - c.padding
								if ix < 0 || ix >= w {
									continue
								}
								acc += weights[wBase+ky*c.kernel+kx] * in[iBase+iy*w+ix]
							}
						}
					}
					dst[base+oy*outW+ox] = acc
				}
			}
		}
	}
	return out
}

// Weight returns the weight tensor [out_channels, in_channels, k, k].
func (c *Conv2d) Weight() *tensor.Tensor {
	return c.weight
}

// Bias returns the bias tensor [out_channels].
func (c *Conv2d) Bias() *tensor.Tensor {
	return c.bias
}

// OutChannels returns the number of output channels.
func (c *Conv2d) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *Conv2d) InChannels() int {
	return c.inChannels
}

// String returns a string representation of the layer.
func (c *Conv2d) String() string {
	return fmt.Sprintf("Conv2d(in_channels=%d, out_channels=%d, kernel_size=%d, padding=%d)",
		c.inChannels, c.outChannels, c.kernel, c.padding)
}
