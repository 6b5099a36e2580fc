package layers

import (
	"fmt"

	"github.com/tsawler/go-relgcn/tensor"
)

// Parameter kinds reported by ParameterInfo.
const (
	ParamWeight     = "weight"
	ParamEdgeWeight = "edge_weight"
	ParamBias       = "bias"
)

// ParameterInfo names one learned parameter of a layer.
type ParameterInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Shape []int  `json:"shape"`
}

func relationWeightName(layer string, i int) string {
	return fmt.Sprintf("%s_W_rel_%d", layer, i)
}

func edgeWeightName(layer string, i int) string {
	return fmt.Sprintf("%s_W_edge_%d", layer, i)
}

func biasName(layer string) string {
	return fmt.Sprintf("%s_b", layer)
}

// orderedParameters lists parameters in allocation order:
// W[0], WEdge[0], W[1], WEdge[1], ..., b.
func orderedParameters(w, wEdges []*tensor.Tensor, b *tensor.Tensor) []*tensor.Tensor {
	params := make([]*tensor.Tensor, 0, len(w)+len(wEdges)+1)
	for i := range w {
		params = append(params, w[i])
		if wEdges != nil {
			params = append(params, wEdges[i])
		}
	}
	return append(params, b)
}

// assignWeights copies values into params after validating every count and
// shape, so a mismatch leaves params untouched.
func assignWeights(params, values []*tensor.Tensor) error {
	if len(values) != len(params) {
		return fmt.Errorf("%w: expected %d weight tensors, got %d", ErrShapeMismatch, len(params), len(values))
	}
	for i, v := range values {
		if v == nil {
			return fmt.Errorf("%w: weight %d is nil", ErrShapeMismatch, i)
		}
		if !sameShape(params[i].Shape, v.Shape) {
			return fmt.Errorf("%w: weight %d has shape %v, expected %v", ErrShapeMismatch, i, v.Shape, params[i].Shape)
		}
		if v.DType != tensor.Float32 {
			return fmt.Errorf("%w: weight %d has dtype %s, expected Float32", ErrShapeMismatch, i, v.DType)
		}
	}

	for i, v := range values {
		if err := params[i].CopyFloat32Data(v.Data.([]float32)); err != nil {
			return fmt.Errorf("failed to copy weight %d: %w", i, err)
		}
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Weights returns the layer's parameter tensors in allocation order. The
// tensors are the layer's own storage; an optimizer updates them in place.
func (l *RelationalGraphConv) Weights() []*tensor.Tensor {
	if !l.built {
		return nil
	}
	return orderedParameters(l.w, l.wEdges, l.b)
}

// ParameterInfo describes Weights element by element.
func (l *RelationalGraphConv) ParameterInfo() []ParameterInfo {
	if !l.built {
		return nil
	}

	infos := make([]ParameterInfo, 0, len(l.w)+len(l.wEdges)+1)
	for i := range l.w {
		infos = append(infos, ParameterInfo{Name: relationWeightName(l.name, i), Kind: ParamWeight, Shape: l.w[i].Size()})
		if l.edgeWeighting {
			infos = append(infos, ParameterInfo{Name: edgeWeightName(l.name, i), Kind: ParamEdgeWeight, Shape: l.wEdges[i].Size()})
		}
	}
	return append(infos, ParameterInfo{Name: biasName(l.name), Kind: ParamBias, Shape: l.b.Size()})
}

// SetWeights overwrites every parameter. Counts and shapes must match
// Weights exactly; on mismatch nothing is changed.
func (l *RelationalGraphConv) SetWeights(values []*tensor.Tensor) error {
	if !l.built {
		return fmt.Errorf("%w: %s", ErrNotBuilt, l.name)
	}
	return assignWeights(l.Weights(), values)
}

// ParameterCount returns the number of learned scalars.
func (l *RelationalGraphConv) ParameterCount() int64 {
	var count int64
	for _, p := range l.Weights() {
		count += int64(p.NumElems)
	}
	return count
}

// parameterShapes predicts the shapes Build will allocate, without building.
func parameterShapes(numAdjacency, numNodes, numFeatures, outputDim int, edgeWeighting bool) [][]int {
	shapes := make([][]int, 0, 2*numAdjacency+1)
	for i := 0; i < numAdjacency; i++ {
		shapes = append(shapes, []int{numFeatures, outputDim})
		if edgeWeighting {
			shapes = append(shapes, []int{numNodes, numFeatures})
		}
	}
	return append(shapes, []int{numNodes, outputDim})
}
