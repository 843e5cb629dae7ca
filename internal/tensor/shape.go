package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
// Flow models work almost exclusively with 4D shapes laid out as
// [batch, channel, height, width].
type Shape []int

// Indices into a 4D [batch, channel, height, width] shape.
const (
	Batch = iota
	Channel
	Height
	Width
)

// NumElements returns the number of elements a tensor of this shape holds.
// The empty shape is a scalar.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate reports an error if any dimension is not positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal reports whether the shapes match dimension for dimension.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides returns the row-major strides of the shape:
// stride[i] is the product of the dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// String returns a human-readable representation of the shape.
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}
