package flow

import (
	"fmt"

	"github.com/ecreager/glow/internal/tensor"
)

// Squeeze trades spatial resolution for channel depth: each factor x factor
// spatial block becomes factor^2 extra channels. It is a pure relabeling of
// elements, so the round trip is bit-identical and the objective is never
// touched.
//
// The index mapping (GLOW ordering) is
//
//	out[b, c*f*f + fi*f + fj, i, j] = in[b, c, i*f + fi, j*f + fj]
//
// for fi, fj in [0, f). unsqueezeBCHW applies the same mapping right to left.
type Squeeze struct {
	factor     int
	inputShape tensor.Shape
}

// NewSqueeze creates a squeeze layer for the given input shape.
// The factor must be greater than 1 and divide both spatial dimensions.
func NewSqueeze(inputShape tensor.Shape, factor int) (*Squeeze, error) {
	if factor <= 1 {
		return nil, fmt.Errorf("squeeze: %w: factor %d (must be > 1)", ErrConfig, factor)
	}
	if len(inputShape) != 4 {
		return nil, fmt.Errorf("squeeze: %w: expected 4D input shape, got %v", ErrShape, inputShape)
	}
	if inputShape[tensor.Height]%factor != 0 || inputShape[tensor.Width]%factor != 0 {
		return nil, fmt.Errorf("squeeze: %w: spatial dims of %v not divisible by factor %d",
			ErrShape, inputShape, factor)
	}
	return &Squeeze{factor: factor, inputShape: inputShape.Clone()}, nil
}

// OutputShape returns the shape produced by the forward pass.
func (s *Squeeze) OutputShape() tensor.Shape {
	b, c, h, w := s.inputShape[0], s.inputShape[1], s.inputShape[2], s.inputShape[3]
	return tensor.Shape{b, c * s.factor * s.factor, h / s.factor, w / s.factor}
}

// ForwardAndJacobian reshapes space into depth. Zero Jacobian contribution.
func (s *Squeeze) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	out, err := squeezeBCHW(x, s.factor)
	if err != nil {
		return nil, nil, err
	}
	return out, objective, nil
}

// ReverseAndJacobian reshapes depth back into space. Zero Jacobian
// contribution.
func (s *Squeeze) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	out, err := unsqueezeBCHW(y, s.factor)
	if err != nil {
		return nil, nil, err
	}
	return out, objective, nil
}

// String returns a string representation of the layer.
func (s *Squeeze) String() string {
	return fmt.Sprintf("Squeeze(factor=%d, input=%v)", s.factor, s.inputShape)
}

func squeezeBCHW(x *tensor.Tensor, factor int) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("squeeze: %w: expected 4D input, got %v", ErrShape, shape)
	}
	b, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if h%factor != 0 || w%factor != 0 {
		return nil, fmt.Errorf("squeeze: %w: spatial dims of %v not divisible by factor %d", ErrShape, shape, factor)
	}

	oh, ow := h/factor, w/factor
	oc := c * factor * factor
	out := tensor.Zeros(tensor.Shape{b, oc, oh, ow})
	src, dst := x.Data(), out.Data()

	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < c; ci++ {
			for fi := 0; fi < factor; fi++ {
				for fj := 0; fj < factor; fj++ {
					co := ci*factor*factor + fi*factor + fj
					for i := 0; i < oh; i++ {
						srcRow := ((bi*c+ci)*h+i*factor+fi)*w + fj
						dstRow := ((bi*oc+co)*oh+i)*ow
						for j := 0; j < ow; j++ {
							dst[dstRow+j] = src[srcRow+j*factor]
						}
					}
				}
			}
		}
	}
	return out, nil
}

func unsqueezeBCHW(y *tensor.Tensor, factor int) (*tensor.Tensor, error) {
	shape := y.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("unsqueeze: %w: expected 4D input, got %v", ErrShape, shape)
	}
	b, c, h, w := shape[0], shape[1], shape[2], shape[3]
	ff := factor * factor
	if c < ff || c%ff != 0 {
		return nil, fmt.Errorf("unsqueeze: %w: channel count %d not divisible by factor^2 = %d", ErrShape, c, ff)
	}

	oc := c / ff
	oh, ow := h*factor, w*factor
	out := tensor.Zeros(tensor.Shape{b, oc, oh, ow})
	src, dst := y.Data(), out.Data()

	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < oc; ci++ {
			for fi := 0; fi < factor; fi++ {
				for fj := 0; fj < factor; fj++ {
					co := ci*ff + fi*factor + fj
					for i := 0; i < h; i++ {
						srcRow := ((bi*c+co)*h + i) * w
						dstRow := ((bi*oc+ci)*oh+i*factor+fi)*ow + fj
						for j := 0; j < w; j++ {
							dst[dstRow+j*factor] = src[srcRow+j]
						}
					}
				}
			}
		}
	}
	return out, nil
}
