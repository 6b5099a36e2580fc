package tensor

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
)

func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	tensor := &Tensor{
		Shape:    copyShape(shape),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: calculateNumElements(shape),
	}

	if data != nil {
		if err := tensor.setData(data); err != nil {
			return nil, err
		}
	}

	return tensor, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		switch d := data.(type) {
		case []float32:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case float32:
			slice := make([]float32, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Float32 tensor: %T", data)
		}
	case Int32:
		switch d := data.(type) {
		case []int32:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case int32:
			slice := make([]int32, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Int32 tensor: %T", data)
		}
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)

	var data interface{}
	switch dtype {
	case Float32:
		data = make([]float32, numElems)
	case Int32:
		data = make([]int32, numElems)
	default:
		return nil, fmt.Errorf("unsupported dtype for Zeros: %s", dtype)
	}

	return NewTensor(shape, dtype, data)
}

// ZerosLike returns a zero tensor with the shape and dtype of t.
func ZerosLike(t *Tensor) (*Tensor, error) {
	return Zeros(t.Shape, t.DType)
}

func Ones(shape []int, dtype DType) (*Tensor, error) {
	switch dtype {
	case Float32:
		return Full(shape, float32(1), dtype)
	case Int32:
		return Full(shape, int32(1), dtype)
	default:
		return nil, fmt.Errorf("unsupported dtype for Ones: %s", dtype)
	}
}

func Full(shape []int, value interface{}, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, value)
}

// EyeLike returns a batch of n x n identity matrices whose batch size and
// dtype follow the leading dimension of ref.
func EyeLike(ref *Tensor, n int) (*Tensor, error) {
	if len(ref.Shape) == 0 {
		return nil, fmt.Errorf("EyeLike requires a batched reference tensor, got scalar")
	}
	if err := requireFloat32("EyeLike", ref); err != nil {
		return nil, err
	}

	batch := ref.Shape[0]
	result, err := Zeros([]int{batch, n, n}, ref.DType)
	if err != nil {
		return nil, err
	}
	data := result.Data.([]float32)
	for b := 0; b < batch; b++ {
		offset := b * n * n
		for i := 0; i < n; i++ {
			data[offset+i*n+i] = 1
		}
	}
	return result, nil
}

// NewRand returns a random source seeded with seed. Every seed, zero
// included, is deterministic.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewClockRand returns a random source seeded from the wall clock.
func NewClockRand() *rand.Rand {
	return NewRand(time.Now().UnixNano())
}

func RandomUniform(shape []int, minVal, maxVal float32, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if maxVal < minVal {
		return nil, fmt.Errorf("RandomUniform: max %v is below min %v", maxVal, minVal)
	}
	if rng == nil {
		rng = NewClockRand()
	}

	slice := make([]float32, calculateNumElements(shape))
	span := maxVal - minVal
	for i := range slice {
		slice[i] = minVal + rng.Float32()*span
	}

	return NewTensor(shape, Float32, slice)
}

func RandomNormal(shape []int, mean, std float32, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewClockRand()
	}

	slice := make([]float32, calculateNumElements(shape))
	for i := range slice {
		slice[i] = float32(rng.NormFloat64())*std + mean
	}

	return NewTensor(shape, Float32, slice)
}

func fans(shape []int) (float32, float32, error) {
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("glorot initialization requires a 2D shape, got %v", shape)
	}
	return float32(shape[0]), float32(shape[1]), nil
}

// GlorotUniform samples U(-limit, limit) with limit = sqrt(6 / (fan_in + fan_out)).
func GlorotUniform(shape []int, rng *rand.Rand) (*Tensor, error) {
	fanIn, fanOut, err := fans(shape)
	if err != nil {
		return nil, err
	}
	limit := math32.Sqrt(6 / (fanIn + fanOut))
	return RandomUniform(shape, -limit, limit, rng)
}

// GlorotNormal samples a normal distribution truncated at two standard
// deviations, scaled so the resulting stddev is sqrt(2 / (fan_in + fan_out)).
func GlorotNormal(shape []int, rng *rand.Rand) (*Tensor, error) {
	fanIn, fanOut, err := fans(shape)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewClockRand()
	}

	std := math32.Sqrt(2/(fanIn+fanOut)) / 0.87962566
	slice := make([]float32, calculateNumElements(shape))
	for i := range slice {
		for {
			v := float32(rng.NormFloat64())
			if math32.Abs(v) <= 2 {
				slice[i] = v * std
				break
			}
		}
	}

	return NewTensor(shape, Float32, slice)
}
