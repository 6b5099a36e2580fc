package tensor

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

func (t *Tensor) Clone() (*Tensor, error) {
	clone := &Tensor{
		Shape:    copyShape(t.Shape),
		Strides:  copyShape(t.Strides),
		DType:    t.DType,
		NumElems: t.NumElems,
	}

	switch t.DType {
	case Float32:
		if t.Data == nil {
			return nil, fmt.Errorf("tensor has nil data")
		}
		data := t.Data.([]float32)
		cloneData := make([]float32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	case Int32:
		if t.Data == nil {
			return nil, fmt.Errorf("tensor has nil data")
		}
		data := t.Data.([]int32)
		cloneData := make([]int32, len(data))
		copy(cloneData, data)
		clone.Data = cloneData
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	return clone, nil
}

func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// CopyFloat32Data overwrites the tensor contents with data.
func (t *Tensor) CopyFloat32Data(data []float32) error {
	dst, err := t.GetFloat32Data()
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return fmt.Errorf("data length %d does not match tensor size %d", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

func (t *Tensor) Size() []int {
	return copyShape(t.Shape)
}

func (t *Tensor) Equal(other *Tensor) (bool, error) {
	return t.AllClose(other, 0)
}

// AllClose reports whether both tensors share a shape and dtype and every
// pair of elements differs by at most tol.
func (t *Tensor) AllClose(other *Tensor, tol float32) (bool, error) {
	if t.DType != other.DType || !shapesEqual(t.Shape, other.Shape) {
		return false, nil
	}

	switch t.DType {
	case Float32:
		data1 := t.Data.([]float32)
		data2 := other.Data.([]float32)
		for i := range data1 {
			if math32.Abs(data1[i]-data2[i]) > tol {
				return false, nil
			}
		}
	case Int32:
		data1 := t.Data.([]int32)
		data2 := other.Data.([]int32)
		for i := range data1 {
			if math32.Abs(float32(data1[i]-data2[i])) > tol {
				return false, nil
			}
		}
	default:
		return false, fmt.Errorf("unsupported dtype for Equal: %s", t.DType)
	}

	return true, nil
}

func (t *Tensor) PrintData(maxElements int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tensor(shape=%v, dtype=%s)\n", t.Shape, t.DType))

	if maxElements <= 0 {
		maxElements = 20
	}

	elementsToShow := t.NumElems
	if elementsToShow > maxElements {
		elementsToShow = maxElements
	}

	sb.WriteString("[")
	for i := 0; i < elementsToShow; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch t.DType {
		case Float32:
			sb.WriteString(fmt.Sprintf("%.4f", t.Data.([]float32)[i]))
		case Int32:
			sb.WriteString(fmt.Sprintf("%d", t.Data.([]int32)[i]))
		}
	}
	if t.NumElems > maxElements {
		sb.WriteString(fmt.Sprintf(", ... (%d more elements)", t.NumElems-maxElements))
	}
	sb.WriteString("]")

	return sb.String()
}
