package tensor

import (
	"fmt"
)

// BroadcastShapes determines if two shapes are broadcastable and returns the resulting shape
// Follows NumPy broadcasting rules:
// 1. Start from trailing dimensions and work backwards
// 2. Dimensions are compatible if they are equal, or one of them is 1, or one is missing
// 3. Result shape is the maximum of each dimension
func BroadcastShapes(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 {
		return copyShape(shape2), nil
	}
	if len(shape2) == 0 {
		return copyShape(shape1), nil
	}

	maxDims := len(shape1)
	if len(shape2) > maxDims {
		maxDims = len(shape2)
	}

	resultShape := make([]int, maxDims)

	for i := 0; i < maxDims; i++ {
		dim1Idx := len(shape1) - 1 - i
		dim2Idx := len(shape2) - 1 - i

		dim1 := 1
		dim2 := 1
		if dim1Idx >= 0 {
			dim1 = shape1[dim1Idx]
		}
		if dim2Idx >= 0 {
			dim2 = shape2[dim2Idx]
		}

		switch {
		case dim1 == dim2:
			resultShape[maxDims-1-i] = dim1
		case dim1 == 1:
			resultShape[maxDims-1-i] = dim2
		case dim2 == 1:
			resultShape[maxDims-1-i] = dim1
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable: dimension %d (%d vs %d)",
				shape1, shape2, i, dim1, dim2)
		}
	}

	return resultShape, nil
}

// BroadcastTensor expands a Float32 tensor to a target shape using broadcasting rules
func BroadcastTensor(t *Tensor, targetShape []int) (*Tensor, error) {
	if err := requireFloat32("BroadcastTensor", t); err != nil {
		return nil, err
	}
	if shapesEqual(t.Shape, targetShape) {
		return t.Clone()
	}

	shape, err := BroadcastShapes(t.Shape, targetShape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast tensor with shape %v to %v: %w", t.Shape, targetShape, err)
	}
	if !shapesEqual(shape, targetShape) {
		return nil, fmt.Errorf("cannot broadcast tensor with shape %v to %v", t.Shape, targetShape)
	}

	result, err := Zeros(targetShape, Float32)
	if err != nil {
		return nil, err
	}

	srcData := t.Data.([]float32)
	dstData := result.Data.([]float32)
	numDims := len(targetShape)
	srcDims := len(t.Shape)

	for dstIdx := 0; dstIdx < result.NumElems; dstIdx++ {
		coords := getIndicesFromLinear(dstIdx, targetShape)

		// Missing leading source dimensions and size-1 dimensions read index 0.
		srcIdx := 0
		for i := 0; i < srcDims; i++ {
			coord := coords[i+numDims-srcDims]
			if t.Shape[i] == 1 {
				coord = 0
			}
			srcIdx += coord * t.Strides[i]
		}
		dstData[dstIdx] = srcData[srcIdx]
	}

	return result, nil
}

// BroadcastTensorsForOperation broadcasts two tensors to a common shape for element-wise operations
func BroadcastTensorsForOperation(a, b *Tensor) (*Tensor, *Tensor, error) {
	broadcastShape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, nil, fmt.Errorf("tensors cannot be broadcast together: %w", err)
	}

	aBroadcast := a
	if !shapesEqual(a.Shape, broadcastShape) {
		if aBroadcast, err = BroadcastTensor(a, broadcastShape); err != nil {
			return nil, nil, fmt.Errorf("failed to broadcast first tensor: %w", err)
		}
	}

	bBroadcast := b
	if !shapesEqual(b.Shape, broadcastShape) {
		if bBroadcast, err = BroadcastTensor(b, broadcastShape); err != nil {
			return nil, nil, fmt.Errorf("failed to broadcast second tensor: %w", err)
		}
	}

	return aBroadcast, bBroadcast, nil
}
