package layers

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// LayerType represents the type of a layer in a ModelSpec
type LayerType int

const (
	SpectralGraphConvolution LayerType = iota
)

func (lt LayerType) String() string {
	switch lt {
	case SpectralGraphConvolution:
		return "SpectralGraphConvolution"
	default:
		return "Unknown"
	}
}

// LayerSpec defines layer configuration for a ModelSpec
// This is pure configuration - no parameters are allocated
type LayerSpec struct {
	Type   LayerType             `json:"type"`
	Name   string                `json:"name"`
	Config GraphConvConfigRecord `json:"config"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	NumAdjacencyMatrices int     `json:"num_adjacency_matrices,omitempty"`
	ParameterShapes      [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount       int64   `json:"parameter_count,omitempty"`
}

// ModelSpec defines a stack of graph convolutions that all read the same
// relation adjacency tensors. Each layer's output features feed the next.
type ModelSpec struct {
	Layers       []LayerSpec `json:"layers"`
	NumRelations int         `json:"num_relations"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct graph convolution stacks
type ModelBuilder struct {
	layers       []LayerSpec
	inputShape   []int
	numRelations int
	compiled     bool
	err          error
}

// NewModelBuilder creates a new model builder. inputShape is the feature
// shape (batch, nodes, features); batch may be -1.
func NewModelBuilder(inputShape []int, numRelations int) *ModelBuilder {
	return &ModelBuilder{
		layers:       make([]LayerSpec, 0),
		inputShape:   inputShape,
		numRelations: numRelations,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	mb.compiled = false
	return mb
}

// AddGraphConvolution adds a relational graph convolution. Configuration
// errors are reported by Compile.
func (mb *ModelBuilder) AddGraphConvolution(outputDim int, name string, opts ...Option) *ModelBuilder {
	l, err := NewRelationalGraphConv(outputDim, append([]Option{WithName(name)}, opts...)...)
	if err != nil {
		mb.err = errors.Join(mb.err, fmt.Errorf("layer %q: %w", name, err))
		return mb
	}
	return mb.AddLayer(LayerSpec{
		Type:   SpectralGraphConvolution,
		Name:   l.Name(),
		Config: l.Config(),
	})
}

// Compile compiles the model and computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if mb.err != nil {
		return nil, mb.err
	}
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if mb.numRelations < 0 {
		return nil, fmt.Errorf("%w: negative relation count %d", ErrShape, mb.numRelations)
	}
	if _, err := featureShape([][]int{mb.inputShape}); err != nil {
		return nil, err
	}

	model := &ModelSpec{
		Layers:       make([]LayerSpec, len(mb.layers)),
		NumRelations: mb.numRelations,
		InputShape:   append([]int(nil), mb.inputShape...),
	}
	copy(model.Layers, mb.layers)

	currentShape := model.InputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]
		layer.InputShape = append([]int(nil), currentShape...)

		if err := mb.computeLayerInfo(layer, currentShape); err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %w", i, layer.Name, err)
		}

		allParameterShapes = append(allParameterShapes, layer.ParameterShapes...)
		totalParams += layer.ParameterCount
		currentShape = layer.OutputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	log().Debug("compiled graph convolution model",
		zap.Int("layers", len(model.Layers)),
		zap.Int("relations", model.NumRelations),
		zap.Int64("parameters", totalParams))

	return model, nil
}

// computeLayerInfo fills in output shape and parameter information for a layer
func (mb *ModelBuilder) computeLayerInfo(layer *LayerSpec, inputShape []int) error {
	if layer.Type != SpectralGraphConvolution {
		return fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}

	cfg := layer.Config
	if cfg.OutputDim <= 0 {
		return fmt.Errorf("%w: output_dim must be positive, got %d", ErrInvalidConfig, cfg.OutputDim)
	}

	numNodes, numFeatures := inputShape[1], inputShape[2]
	numAdjacency := NumAdjacencyMatrices(mb.numRelations, cfg.SelfLinks, cfg.ConsecutiveLinks, cfg.BackwardLinks)
	if numAdjacency == 0 {
		return fmt.Errorf("%w: no relations supplied and every structural link is disabled", ErrShape)
	}

	layer.OutputShape = []int{inputShape[0], numNodes, cfg.OutputDim}
	layer.NumAdjacencyMatrices = numAdjacency
	layer.ParameterShapes = parameterShapes(numAdjacency, numNodes, numFeatures, cfg.OutputDim, cfg.EdgeWeighting)

	layer.ParameterCount = 0
	for _, shape := range layer.ParameterShapes {
		layer.ParameterCount += int64(shape[0] * shape[1])
	}
	return nil
}

// GetCompiledModel returns the compiled model (must call Compile first)
func (mb *ModelBuilder) GetCompiledModel() (*ModelSpec, error) {
	if !mb.compiled {
		return nil, fmt.Errorf("model not compiled - call Compile() first")
	}
	return mb.Compile()
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	sb.WriteString("Model Summary:\n")
	sb.WriteString(fmt.Sprintf("Input Shape: %v\n", ms.InputShape))
	sb.WriteString(fmt.Sprintf("Relations: %d\n", ms.NumRelations))
	sb.WriteString(fmt.Sprintf("Output Shape: %v\n", ms.OutputShape))
	sb.WriteString(fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters))
	sb.WriteString(fmt.Sprintf("Layers: %d\n\n", len(ms.Layers)))

	for i, layer := range ms.Layers {
		cfg := layer.Config
		sb.WriteString(fmt.Sprintf("Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String()))
		sb.WriteString(fmt.Sprintf("  Input:  %v\n", layer.InputShape))
		sb.WriteString(fmt.Sprintf("  Output: %v\n", layer.OutputShape))
		sb.WriteString(fmt.Sprintf("  Adjacency matrices: %d\n", layer.NumAdjacencyMatrices))
		sb.WriteString(fmt.Sprintf("  Params: %d\n", layer.ParameterCount))
		sb.WriteString(fmt.Sprintf("  Config: activation=%s init=%s bias=%t self=%t consecutive=%t backward=%t edge_weighting=%t\n",
			cfg.Activation, cfg.Init, cfg.Bias, cfg.SelfLinks, cfg.ConsecutiveLinks, cfg.BackwardLinks, cfg.EdgeWeighting))
		sb.WriteString("\n")
	}

	return sb.String()
}
