package layers

import "errors"

var (
	// ErrInvalidConfig is returned when a layer is constructed with an
	// unusable configuration value.
	ErrInvalidConfig = errors.New("invalid layer configuration")

	// ErrShape is returned when input shapes are malformed or disagree with
	// the shapes frozen when the layer was built.
	ErrShape = errors.New("shape error")

	// ErrShapeMismatch is returned when explicit weights do not match the
	// layer's parameter set in count or shape.
	ErrShapeMismatch = errors.New("weight shape mismatch")

	// ErrNotBuilt is returned by operations that need allocated parameters.
	ErrNotBuilt = errors.New("layer not built")
)
