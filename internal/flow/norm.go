package flow

import (
	"fmt"
	"math"

	"github.com/ecreager/glow/internal/tensor"
)

// BatchNorm normalizes each channel and reports the log-determinant of the
// implied rescaling: log(1/std_c) for each of the height*width positions of
// each example, summed over channels.
//
// In training mode the forward pass normalizes with batch statistics and
// updates the running statistics as a side effect. In eval mode it
// normalizes with the running statistics. The reverse pass un-normalizes
// with the running statistics and is only valid in eval mode, where it is
// the exact inverse of the forward pass.
//
// The running statistics are layer-owned mutable state; concurrent calls on
// the same layer are not supported.
type BatchNorm struct {
	numChannels int
	eps         float64
	momentum    float64

	runningMean []float64
	runningVar  []float64
	training    bool
}

// NewBatchNorm creates a batch normalization layer in training mode with
// standard defaults (eps 1e-5, momentum 0.1). Running statistics start at
// mean 0, variance 1.
func NewBatchNorm(numChannels int) (*BatchNorm, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("batchnorm: %w: channel count %d", ErrConfig, numChannels)
	}
	b := &BatchNorm{
		numChannels: numChannels,
		eps:         1e-5,
		momentum:    0.1,
		runningMean: make([]float64, numChannels),
		runningVar:  make([]float64, numChannels),
		training:    true,
	}
	for i := range b.runningVar {
		b.runningVar[i] = 1
	}
	return b, nil
}

// SetTraining flips between training (batch statistics, running-stat
// updates) and eval (frozen running statistics) mode.
func (b *BatchNorm) SetTraining(training bool) {
	b.training = training
}

// Training reports whether the layer is in training mode.
func (b *BatchNorm) Training() bool {
	return b.training
}

func (b *BatchNorm) check(x *tensor.Tensor) error {
	if len(x.Shape()) != 4 {
		return fmt.Errorf("batchnorm: %w: expected 4D input, got %v", ErrShape, x.Shape())
	}
	if x.Shape()[tensor.Channel] != b.numChannels {
		return fmt.Errorf("batchnorm: %w: expected %d channels, got %d", ErrShape, b.numChannels, x.Shape()[tensor.Channel])
	}
	return nil
}

// batchStats computes per-channel mean and (biased) variance over the batch
// and spatial axes.
func (b *BatchNorm) batchStats(x *tensor.Tensor) (mean, variance []float64) {
	shape := x.Shape()
	n, c := shape[tensor.Batch], shape[tensor.Channel]
	spatial := shape[tensor.Height] * shape[tensor.Width]
	count := float64(n * spatial)
	data := x.Data()

	mean = make([]float64, c)
	variance = make([]float64, c)
	for ci := 0; ci < c; ci++ {
		var sum, sqSum float64
		for bi := 0; bi < n; bi++ {
			base := (bi*c + ci) * spatial
			for i := 0; i < spatial; i++ {
				v := data[base+i]
				sum += v
				sqSum += v * v
			}
		}
		m := sum / count
		mean[ci] = m
		variance[ci] = sqSum/count - m*m
		if variance[ci] < b.eps {
			variance[ci] = b.eps
		}
	}
	return mean, variance
}

// updateRunning folds fresh batch statistics into the running statistics
// with the standard exponential moving average.
func (b *BatchNorm) updateRunning(mean, variance []float64) {
	for ci := 0; ci < b.numChannels; ci++ {
		b.runningMean[ci] = (1-b.momentum)*b.runningMean[ci] + b.momentum*mean[ci]
		b.runningVar[ci] = (1-b.momentum)*b.runningVar[ci] + b.momentum*variance[ci]
	}
}

// logDetPerExample is the objective contribution of normalizing with the
// given variances: sum over channels of log(1/std_c), once per spatial
// position.
func (b *BatchNorm) logDetPerExample(variance []float64, spatial int) float64 {
	var sum float64
	for _, v := range variance {
		sum += -0.5 * math.Log(v+b.eps)
	}
	return sum * float64(spatial)
}

// ForwardAndJacobian normalizes x and adds the normalization's
// log-determinant. Training mode uses (and folds into the running state)
// batch statistics; eval mode uses the running statistics.
func (b *BatchNorm) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if err := b.check(x); err != nil {
		return nil, nil, err
	}

	var mean, variance []float64
	if b.training {
		mean, variance = b.batchStats(x)
		b.updateRunning(mean, variance)
	} else {
		mean, variance = b.runningMean, b.runningVar
	}

	out := b.normalize(x, mean, variance)
	spatial := x.Shape()[tensor.Height] * x.Shape()[tensor.Width]
	objective = objective.AddScalar(b.logDetPerExample(variance, spatial))
	return out, objective, nil
}

// ReverseAndJacobian un-normalizes y with the running statistics and
// subtracts the matching log-determinant. Only valid in eval mode.
func (b *BatchNorm) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	if b.training {
		return nil, nil, fmt.Errorf("batchnorm: %w: reverse pass is only valid outside training mode", ErrMode)
	}
	if err := b.check(y); err != nil {
		return nil, nil, err
	}

	out := b.denormalize(y, b.runningMean, b.runningVar)
	spatial := y.Shape()[tensor.Height] * y.Shape()[tensor.Width]
	objective = objective.AddScalar(-b.logDetPerExample(b.runningVar, spatial))
	return out, objective, nil
}

func (b *BatchNorm) normalize(x *tensor.Tensor, mean, variance []float64) *tensor.Tensor {
	shape := x.Shape()
	n, c := shape[tensor.Batch], shape[tensor.Channel]
	spatial := shape[tensor.Height] * shape[tensor.Width]
	out := tensor.Zeros(shape)
	src, dst := x.Data(), out.Data()
	for ci := 0; ci < c; ci++ {
		invStd := 1 / math.Sqrt(variance[ci]+b.eps)
		for bi := 0; bi < n; bi++ {
			base := (bi*c + ci) * spatial
			for i := 0; i < spatial; i++ {
				dst[base+i] = (src[base+i] - mean[ci]) * invStd
			}
		}
	}
	return out
}

func (b *BatchNorm) denormalize(y *tensor.Tensor, mean, variance []float64) *tensor.Tensor {
	shape := y.Shape()
	n, c := shape[tensor.Batch], shape[tensor.Channel]
	spatial := shape[tensor.Height] * shape[tensor.Width]
	out := tensor.Zeros(shape)
	src, dst := y.Data(), out.Data()
	for ci := 0; ci < c; ci++ {
		std := math.Sqrt(variance[ci] + b.eps)
		for bi := 0; bi < n; bi++ {
			base := (bi*c + ci) * spatial
			for i := 0; i < spatial; i++ {
				dst[base+i] = src[base+i]*std + mean[ci]
			}
		}
	}
	return out
}

// String returns a string representation of the layer.
func (b *BatchNorm) String() string {
	return fmt.Sprintf("BatchNorm(channels=%d, training=%v)", b.numChannels, b.training)
}

// ActNorm is the per-channel affine normalization with data-dependent
// initialization described by Glow. It is declared so architecture
// configurations can name it, but it is not implemented: construction fails
// with ErrNotImplemented rather than guessing at the initialization
// semantics.
type ActNorm struct{}

// NewActNorm always fails with ErrNotImplemented.
func NewActNorm(numChannels int) (*ActNorm, error) {
	return nil, fmt.Errorf("actnorm (channels=%d): %w", numChannels, ErrNotImplemented)
}

// ForwardAndJacobian always fails with ErrNotImplemented.
func (a *ActNorm) ForwardAndJacobian(x *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	return nil, nil, fmt.Errorf("actnorm: %w", ErrNotImplemented)
}

// ReverseAndJacobian always fails with ErrNotImplemented.
func (a *ActNorm) ReverseAndJacobian(y *tensor.Tensor, objective Objective) (*tensor.Tensor, Objective, error) {
	return nil, nil, fmt.Errorf("actnorm: %w", ErrNotImplemented)
}
