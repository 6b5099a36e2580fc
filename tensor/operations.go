package tensor

import (
	"fmt"

	"github.com/chewxy/math32"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1 == nil || t2 == nil {
		return fmt.Errorf("cannot operate on nil tensors")
	}
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	return nil
}

// elementwise applies fn to every pair of elements after broadcasting t1
// and t2 to a common shape.
func elementwise(op string, t1, t2 *Tensor, fn func(a, b float32) float32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if err := requireFloat32(op, t1, t2); err != nil {
		return nil, err
	}

	a, b, err := BroadcastTensorsForOperation(t1, t2)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := ZerosLike(a)
	if err != nil {
		return nil, err
	}

	data1 := a.Data.([]float32)
	data2 := b.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := range resultData {
		resultData[i] = fn(data1[i], data2[i])
	}

	return result, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Add", t1, t2, func(a, b float32) float32 { return a + b })
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise("Mul", t1, t2, func(a, b float32) float32 { return a * b })
}

// Map returns a new tensor holding fn applied to every element of t.
func Map(t *Tensor, fn func(float32) float32) (*Tensor, error) {
	if err := requireFloat32("Map", t); err != nil {
		return nil, err
	}

	result, err := ZerosLike(t)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i, v := range data {
		resultData[i] = fn(v)
	}

	return result, nil
}

func ReLU(t *Tensor) (*Tensor, error) {
	return Map(t, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func Sigmoid(t *Tensor) (*Tensor, error) {
	return Map(t, func(v float32) float32 {
		return 1 / (1 + math32.Exp(-v))
	})
}

func Tanh(t *Tensor) (*Tensor, error) {
	return Map(t, func(v float32) float32 {
		return 2/(1+math32.Exp(-2*v)) - 1
	})
}

// ELU computes x for x > 0 and alpha * (exp(x) - 1) otherwise.
func ELU(t *Tensor, alpha float32) (*Tensor, error) {
	return Map(t, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return alpha * (math32.Exp(v) - 1)
	})
}

// Softmax normalizes over the last axis.
func Softmax(t *Tensor) (*Tensor, error) {
	if err := requireFloat32("Softmax", t); err != nil {
		return nil, err
	}
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("softmax requires at least one dimension")
	}

	result, err := ZerosLike(t)
	if err != nil {
		return nil, err
	}

	width := t.Shape[len(t.Shape)-1]
	data := t.Data.([]float32)
	resultData := result.Data.([]float32)

	for row := 0; row < t.NumElems/width; row++ {
		in := data[row*width : (row+1)*width]
		out := resultData[row*width : (row+1)*width]

		maxVal := in[0]
		for _, v := range in[1:] {
			maxVal = math32.Max(maxVal, v)
		}
		var sum float32
		for i, v := range in {
			out[i] = math32.Exp(v - maxVal)
			sum += out[i]
		}
		for i := range out {
			out[i] /= sum
		}
	}

	return result, nil
}
