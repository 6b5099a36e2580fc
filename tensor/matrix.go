package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func getIndex(indices []int, strides []int) int {
	index := 0
	for i, idx := range indices {
		index += idx * strides[i]
	}
	return index
}

func getIndicesFromLinear(linearIndex int, shape []int) []int {
	indices := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		indices[i] = linearIndex % shape[i]
		linearIndex /= shape[i]
	}
	return indices
}

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// MatMul contracts the last axis of t1 with the first axis of the 2D
// tensor t2. Leading axes of t1 are treated as batch axes, so a
// (batch, nodes, in) tensor times an (in, out) matrix yields
// (batch, nodes, out).
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if err := requireFloat32("MatMul", t1, t2); err != nil {
		return nil, err
	}
	if len(t1.Shape) < 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires a tensor with at least 2 dimensions and a 2D matrix, got %v and %v", t1.Shape, t2.Shape)
	}

	cols1 := t1.Shape[len(t1.Shape)-1]
	rows2, cols2 := t2.Shape[0], t2.Shape[1]
	if cols1 != rows2 {
		return nil, fmt.Errorf("incompatible dimensions for matmul: %v x %v", t1.Shape, t2.Shape)
	}

	outputShape := copyShape(t1.Shape)
	outputShape[len(outputShape)-1] = cols2

	result, err := Zeros(outputShape, Float32)
	if err != nil {
		return nil, err
	}

	rows1 := t1.NumElems / cols1
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(t1.Data.([]float32), rows1, cols1),
		general(t2.Data.([]float32), rows2, cols2),
		0,
		general(result.Data.([]float32), rows1, cols2))

	return result, nil
}

// BatchMatMul performs batched matrix multiplication
// Input tensors should be 3D: [batch_size, M, N] x [batch_size, N, P] -> [batch_size, M, P]
func BatchMatMul(tensorA, tensorB *Tensor) (*Tensor, error) {
	if err := requireFloat32("BatchMatMul", tensorA, tensorB); err != nil {
		return nil, err
	}
	if len(tensorA.Shape) != 3 || len(tensorB.Shape) != 3 {
		return nil, fmt.Errorf("BatchMatMul requires 3D tensors, got %v and %v", tensorA.Shape, tensorB.Shape)
	}

	batchSize := tensorA.Shape[0]
	M := tensorA.Shape[1]
	N := tensorA.Shape[2]
	P := tensorB.Shape[2]

	if tensorA.Shape[0] != tensorB.Shape[0] {
		return nil, fmt.Errorf("batch sizes must match: %d vs %d", tensorA.Shape[0], tensorB.Shape[0])
	}
	if N != tensorB.Shape[1] {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", N, tensorB.Shape[1])
	}

	result, err := Zeros([]int{batchSize, M, P}, Float32)
	if err != nil {
		return nil, err
	}

	dataA := tensorA.Data.([]float32)
	dataB := tensorB.Data.([]float32)
	resultData := result.Data.([]float32)

	for b := 0; b < batchSize; b++ {
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			general(dataA[b*M*N:(b+1)*M*N], M, N),
			general(dataB[b*N*P:(b+1)*N*P], N, P),
			0,
			general(resultData[b*M*P:(b+1)*M*P], M, P))
	}

	return result, nil
}

func Transpose(t *Tensor, dim0, dim1 int) (*Tensor, error) {
	if dim0 < 0 || dim0 >= len(t.Shape) {
		return nil, fmt.Errorf("dim0 %d out of range for tensor with %d dimensions", dim0, len(t.Shape))
	}
	if dim1 < 0 || dim1 >= len(t.Shape) {
		return nil, fmt.Errorf("dim1 %d out of range for tensor with %d dimensions", dim1, len(t.Shape))
	}

	outputShape := copyShape(t.Shape)
	outputShape[dim0], outputShape[dim1] = outputShape[dim1], outputShape[dim0]

	result, err := Zeros(outputShape, t.DType)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t.NumElems; i++ {
			indices := getIndicesFromLinear(i, t.Shape)
			indices[dim0], indices[dim1] = indices[dim1], indices[dim0]
			resultData[getIndex(indices, result.Strides)] = data[i]
		}
	case Int32:
		data := t.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t.NumElems; i++ {
			indices := getIndicesFromLinear(i, t.Shape)
			indices[dim0], indices[dim1] = indices[dim1], indices[dim0]
			resultData[getIndex(indices, result.Strides)] = data[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Transpose: %s", t.DType)
	}

	return result, nil
}

// TransposeLast swaps the two trailing axes, e.g. turns a batch of
// adjacency matrices into the batch of their transposes.
func TransposeLast(t *Tensor) (*Tensor, error) {
	if len(t.Shape) < 2 {
		return nil, fmt.Errorf("TransposeLast requires at least 2 dimensions, got %v", t.Shape)
	}
	return Transpose(t, len(t.Shape)-2, len(t.Shape)-1)
}

// Roll cyclically shifts elements along axis by shift positions: the
// element at position i moves to position (i + shift) mod size, matching
// numpy.roll.
func Roll(t *Tensor, shift, axis int) (*Tensor, error) {
	if axis < 0 {
		axis += len(t.Shape)
	}
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("axis %d out of range for tensor with %d dimensions", axis, len(t.Shape))
	}

	size := t.Shape[axis]
	shift = ((shift % size) + size) % size

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t.NumElems; i++ {
			indices := getIndicesFromLinear(i, t.Shape)
			indices[axis] = (indices[axis] + shift) % size
			resultData[getIndex(indices, result.Strides)] = data[i]
		}
	case Int32:
		data := t.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t.NumElems; i++ {
			indices := getIndicesFromLinear(i, t.Shape)
			indices[axis] = (indices[axis] + shift) % size
			resultData[getIndex(indices, result.Strides)] = data[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Roll: %s", t.DType)
	}

	return result, nil
}

// Stack joins tensors of identical shape along a new axis.
func Stack(tensors []*Tensor, axis int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("stack requires at least one tensor")
	}
	if err := requireFloat32("Stack", tensors...); err != nil {
		return nil, err
	}

	base := tensors[0].Shape
	if axis < 0 || axis > len(base) {
		return nil, fmt.Errorf("axis %d out of range for stacking tensors with %d dimensions", axis, len(base))
	}
	for i, t := range tensors[1:] {
		if !shapesEqual(base, t.Shape) {
			return nil, fmt.Errorf("stack: tensor %d has shape %v, expected %v", i+1, t.Shape, base)
		}
	}

	outputShape := make([]int, 0, len(base)+1)
	outputShape = append(outputShape, base[:axis]...)
	outputShape = append(outputShape, len(tensors))
	outputShape = append(outputShape, base[axis:]...)

	result, err := Zeros(outputShape, Float32)
	if err != nil {
		return nil, err
	}

	// outer blocks are copied contiguously: each input contributes one
	// chunk of inner elements per outer index.
	outer := calculateNumElements(base[:axis])
	inner := calculateNumElements(base[axis:])
	resultData := result.Data.([]float32)
	for o := 0; o < outer; o++ {
		for k, t := range tensors {
			src := t.Data.([]float32)[o*inner : (o+1)*inner]
			copy(resultData[(o*len(tensors)+k)*inner:], src)
		}
	}

	return result, nil
}

// Max reduces t along axis by taking the element-wise maximum.
func Max(t *Tensor, axis int) (*Tensor, error) {
	if err := requireFloat32("Max", t); err != nil {
		return nil, err
	}
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("axis %d out of range for tensor with %d dimensions", axis, len(t.Shape))
	}

	outputShape := make([]int, 0, len(t.Shape)-1)
	outputShape = append(outputShape, t.Shape[:axis]...)
	outputShape = append(outputShape, t.Shape[axis+1:]...)

	outer := calculateNumElements(t.Shape[:axis])
	size := t.Shape[axis]
	inner := calculateNumElements(t.Shape[axis+1:])

	resultData := make([]float32, outer*inner)
	data := t.Data.([]float32)
	for o := 0; o < outer; o++ {
		for j := 0; j < inner; j++ {
			best := data[o*size*inner+j]
			for k := 1; k < size; k++ {
				if v := data[(o*size+k)*inner+j]; v > best {
					best = v
				}
			}
			resultData[o*inner+j] = best
		}
	}

	if len(outputShape) == 0 {
		return &Tensor{Shape: []int{}, Strides: []int{}, DType: Float32, Data: resultData, NumElems: 1}, nil
	}
	return NewTensor(outputShape, Float32, resultData)
}

