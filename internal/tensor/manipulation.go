package tensor

import "fmt"

// Channel-axis manipulation. These operate on 4D [batch, channel, height,
// width] tensors; coupling and multiscale layers partition and reassemble
// tensors exclusively along the channel axis.

func (t *Tensor) must4D(op string) (b, c, h, w int) {
	if len(t.shape) != 4 {
		panic(fmt.Sprintf("tensor: %s requires a 4D tensor, got shape %v", op, t.shape))
	}
	return t.shape[0], t.shape[1], t.shape[2], t.shape[3]
}

// Chunk2 splits a 4D tensor into two contiguous halves along the channel
// axis. The channel count must be even.
func (t *Tensor) Chunk2() (*Tensor, *Tensor) {
	b, c, h, w := t.must4D("Chunk2")
	if c%2 != 0 {
		panic(fmt.Sprintf("tensor: Chunk2 requires an even channel count, got %d", c))
	}
	half := c / 2
	spatial := h * w
	z1 := New(Shape{b, half, h, w})
	z2 := New(Shape{b, half, h, w})
	for bi := 0; bi < b; bi++ {
		src := t.data[bi*c*spatial : (bi+1)*c*spatial]
		copy(z1.data[bi*half*spatial:], src[:half*spatial])
		copy(z2.data[bi*half*spatial:], src[half*spatial:])
	}
	return z1, z2
}

// Cat2 concatenates two 4D tensors along the channel axis. Batch and spatial
// dimensions must match.
func Cat2(a, b *Tensor) *Tensor {
	ab, ac, ah, aw := a.must4D("Cat2")
	bb, bc, bh, bw := b.must4D("Cat2")
	if ab != bb || ah != bh || aw != bw {
		panic(fmt.Sprintf("tensor: Cat2 requires matching batch and spatial dims, got %v and %v", a.shape, b.shape))
	}
	spatial := ah * aw
	out := New(Shape{ab, ac + bc, ah, aw})
	for bi := 0; bi < ab; bi++ {
		dst := out.data[bi*(ac+bc)*spatial : (bi+1)*(ac+bc)*spatial]
		copy(dst[:ac*spatial], a.data[bi*ac*spatial:(bi+1)*ac*spatial])
		copy(dst[ac*spatial:], b.data[bi*bc*spatial:(bi+1)*bc*spatial])
	}
	return out
}

// SelectChannels gathers channels by index, in order. Indices may repeat and
// need not cover all channels.
func (t *Tensor) SelectChannels(idx []int) *Tensor {
	b, c, h, w := t.must4D("SelectChannels")
	spatial := h * w
	out := New(Shape{b, len(idx), h, w})
	for bi := 0; bi < b; bi++ {
		for oi, ci := range idx {
			if ci < 0 || ci >= c {
				panic(fmt.Sprintf("tensor: SelectChannels index %d out of range for %d channels", ci, c))
			}
			src := t.data[(bi*c+ci)*spatial : (bi*c+ci+1)*spatial]
			copy(out.data[(bi*len(idx)+oi)*spatial:], src)
		}
	}
	return out
}

// StridedChannels selects channels offset, offset+step, offset+2*step, ...
// This is the alternating-channel interleave used to unpack shift/scale
// pairs produced by a coupling network.
func (t *Tensor) StridedChannels(offset, step int) *Tensor {
	_, c, _, _ := t.must4D("StridedChannels")
	if step <= 0 || offset < 0 || offset >= c {
		panic(fmt.Sprintf("tensor: StridedChannels invalid offset=%d step=%d for %d channels", offset, step, c))
	}
	idx := make([]int, 0, (c-offset+step-1)/step)
	for ci := offset; ci < c; ci += step {
		idx = append(idx, ci)
	}
	return t.SelectChannels(idx)
}

// Reshape returns a tensor with the same data but a different shape.
// The new shape must have the same number of elements.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	newShape := Shape(dims)
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", t.shape, newShape))
	}
	out := New(newShape)
	copy(out.data, t.data)
	return out
}
