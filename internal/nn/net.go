package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/ecreager/glow/internal/tensor"
)

// ConvNet is the stock conditioning network for coupling layers:
// a 3x3 convolution, ReLU, a 1x1 convolution, ReLU, and a zero-initialized
// 3x3 convolution. The zero-initialized output stage makes every coupling
// layer start as the identity transform.
type ConvNet struct {
	in   *Conv2d
	mid  *Conv2d
	out  *Conv2d
	inC  int
	outC int
}

// NewConvNet builds a ConvNet mapping inChannels to outChannels through a
// hidden width.
func NewConvNet(inChannels, outChannels, hidden int, rng *rand.Rand) *ConvNet {
	if hidden <= 0 {
		panic(fmt.Sprintf("convnet: invalid hidden width %d", hidden))
	}
	return &ConvNet{
		in:   NewConv2d(inChannels, hidden, 3, 1, rng),
		mid:  NewConv2d(hidden, hidden, 1, 0, rng),
		out:  NewConv2dZeros(hidden, outChannels, 3, 1),
		inC:  inChannels,
		outC: outChannels,
	}
}

// Apply runs the network on a [batch, in_channels, h, w] tensor and returns
// a [batch, out_channels, h, w] tensor.
func (n *ConvNet) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape()) != 4 || x.Shape()[tensor.Channel] != n.inC {
		return nil, fmt.Errorf("convnet: expected [N,%d,H,W] input, got %v", n.inC, x.Shape())
	}
	h := relu(n.in.Forward(x))
	h = relu(n.mid.Forward(h))
	return n.out.Forward(h), nil
}

// InChannels returns the expected input channel count.
func (n *ConvNet) InChannels() int {
	return n.inC
}

// OutChannels returns the produced output channel count.
func (n *ConvNet) OutChannels() int {
	return n.outC
}

func relu(t *tensor.Tensor) *tensor.Tensor {
	out := t.Clone()
	data := out.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return out
}
