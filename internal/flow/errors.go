package flow

import "errors"

// Error categories. Every failure a layer can produce wraps exactly one of
// these, so callers can classify with errors.Is while the message names the
// offending layer and contract.
var (
	// ErrShape reports spatial or channel dimensions that violate a layer's
	// divisibility or parity contract.
	ErrShape = errors.New("incompatible shape")

	// ErrConfig reports an unrecognized or inconsistent architecture
	// selection at construction time.
	ErrConfig = errors.New("invalid configuration")

	// ErrMode reports an operation attempted in the wrong training/eval
	// mode, or a terminal-layer call with the wrong input convention.
	ErrMode = errors.New("invalid mode")

	// ErrNotImplemented reports a declared layer variant with no
	// implementation.
	ErrNotImplemented = errors.New("not implemented")
)
