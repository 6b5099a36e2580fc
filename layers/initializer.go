package layers

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-relgcn/tensor"
)

// Initializer identifies how a parameter matrix is filled when a layer is built.
type Initializer string

const (
	GlorotUniform Initializer = "glorot_uniform"
	GlorotNormal  Initializer = "glorot_normal"
	RandomUniform Initializer = "random_uniform"
	Zeros         Initializer = "zeros"
	Ones          Initializer = "ones"
)

// randomUniformLimit bounds RandomUniform draws to [-0.05, 0.05].
const randomUniformLimit = 0.05

func (i Initializer) String() string {
	return string(i)
}

func (i Initializer) validate() error {
	switch i {
	case GlorotUniform, GlorotNormal, RandomUniform, Zeros, Ones:
		return nil
	default:
		return fmt.Errorf("%w: unknown initializer %q", ErrInvalidConfig, string(i))
	}
}

func (i Initializer) initialize(shape []int, rng *rand.Rand) (*tensor.Tensor, error) {
	switch i {
	case GlorotUniform:
		return tensor.GlorotUniform(shape, rng)
	case GlorotNormal:
		return tensor.GlorotNormal(shape, rng)
	case RandomUniform:
		return tensor.RandomUniform(shape, -randomUniformLimit, randomUniformLimit, rng)
	case Zeros:
		return tensor.Zeros(shape, tensor.Float32)
	case Ones:
		return tensor.Ones(shape, tensor.Float32)
	default:
		return nil, fmt.Errorf("%w: unknown initializer %q", ErrInvalidConfig, string(i))
	}
}
