package layers

import (
	"fmt"

	"github.com/tsawler/go-relgcn/tensor"
)

// Model runs a compiled stack of graph convolutions.
type Model struct {
	spec   *ModelSpec
	layers []*RelationalGraphConv
}

// Instantiate creates and builds one layer per LayerSpec. opts are applied
// to every layer after its recorded configuration. A WithSeed seed s gives
// layer i the seed s+i.
func (ms *ModelSpec) Instantiate(opts ...Option) (*Model, error) {
	if !ms.Compiled {
		return nil, fmt.Errorf("model not compiled")
	}

	model := &Model{spec: ms, layers: make([]*RelationalGraphConv, 0, len(ms.Layers))}
	for i, spec := range ms.Layers {
		l, err := FromConfig(spec.Config, opts...)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Name, err)
		}
		// layer i draws from seed+i
		if l.seedSet {
			l.seed += int64(i)
		}
		if err := l.Build(buildShapes(spec.InputShape, ms.NumRelations)); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Name, err)
		}
		model.layers = append(model.layers, l)
	}

	return model, nil
}

func buildShapes(featureShape []int, numRelations int) [][]int {
	shapes := make([][]int, 0, numRelations+1)
	shapes = append(shapes, featureShape)
	for i := 0; i < numRelations; i++ {
		shapes = append(shapes, []int{featureShape[0], featureShape[1], featureShape[1]})
	}
	return shapes
}

func (m *Model) Spec() *ModelSpec { return m.spec }

func (m *Model) Layers() []*RelationalGraphConv { return m.layers }

// Forward feeds features through every layer; all layers see the same
// raw adjacency tensors.
func (m *Model) Forward(features *tensor.Tensor, adjacency ...*tensor.Tensor) (*tensor.Tensor, error) {
	out := features
	for _, l := range m.layers {
		var err error
		if out, err = l.Call(out, adjacency...); err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name(), err)
		}
	}
	return out, nil
}

// Weights lists the parameters of all layers in layer order.
func (m *Model) Weights() []*tensor.Tensor {
	var weights []*tensor.Tensor
	for _, l := range m.layers {
		weights = append(weights, l.Weights()...)
	}
	return weights
}

func (m *Model) RegularizationLoss() float32 {
	var loss float32
	for _, l := range m.layers {
		loss += l.RegularizationLoss()
	}
	return loss
}
