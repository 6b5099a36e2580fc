package layers

import (
	"fmt"

	"github.com/tsawler/go-relgcn/tensor"
)

// Activation identifies the element-wise function applied to a layer's output.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
	Tanh    Activation = "tanh"
	Softmax Activation = "softmax"
	ELU     Activation = "elu"
)

func (a Activation) String() string {
	return string(a)
}

func (a Activation) validate() error {
	switch a {
	case Linear, ReLU, Sigmoid, Tanh, Softmax, ELU:
		return nil
	default:
		return fmt.Errorf("%w: unknown activation %q", ErrInvalidConfig, string(a))
	}
}

// Apply evaluates the activation on t. Linear returns t unchanged.
func (a Activation) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	switch a {
	case Linear:
		return t, nil
	case ReLU:
		return tensor.ReLU(t)
	case Sigmoid:
		return tensor.Sigmoid(t)
	case Tanh:
		return tensor.Tanh(t)
	case Softmax:
		return tensor.Softmax(t)
	case ELU:
		return tensor.ELU(t, 1)
	default:
		return nil, fmt.Errorf("%w: unknown activation %q", ErrInvalidConfig, string(a))
	}
}
