package layers

import (
	"fmt"
	"sync/atomic"

	"github.com/tsawler/go-relgcn/tensor"
	"go.uber.org/zap"
)

// EdgeGating selects how per-relation edge gates combine with the features.
type EdgeGating string

const (
	// GateCumulative multiplies the gate of relation i into features that
	// already carry the gates of relations 0..i-1.
	GateCumulative EdgeGating = "cumulative"

	// GateIndependent applies every relation's gate to the original features.
	GateIndependent EdgeGating = "independent"
)

func (g EdgeGating) validate() error {
	switch g {
	case GateCumulative, GateIndependent:
		return nil
	default:
		return fmt.Errorf("%w: unknown edge gating %q", ErrInvalidConfig, string(g))
	}
}

// Layer is the protocol a host model uses to drive a layer.
type Layer interface {
	Name() string
	Build(inputShapes [][]int) error
	Call(features *tensor.Tensor, adjacency ...*tensor.Tensor) (*tensor.Tensor, error)
	ComputeOutputShape(inputShapes [][]int) ([]int, error)
	Weights() []*tensor.Tensor
}

var layerCounter atomic.Int64

// RelationalGraphConv convolves node features over a set of relations:
// for every relation i it computes A_i · (F · W_i), max-pools the results
// across relations, adds a per-node bias and applies the activation.
//
// Parameters are allocated lazily by Build, which runs on the first Call.
// After that the node count, feature count and relation count are fixed.
type RelationalGraphConv struct {
	name              string
	outputDim         int
	activation        Activation
	initializer       Initializer
	useBias           bool
	selfLinks         bool
	consecutiveLinks  bool
	backwardLinks     bool
	edgeWeighting     bool
	edgeGating        EdgeGating
	weightRegularizer *L1L2
	biasRegularizer   *L1L2
	initialWeights    []*tensor.Tensor
	seed              int64
	seedSet           bool

	built        bool
	numNodes     int
	numFeatures  int
	numRelations int
	numAdjacency int

	w      []*tensor.Tensor
	wEdges []*tensor.Tensor
	b      *tensor.Tensor
}

// Option configures a RelationalGraphConv at construction.
type Option func(*RelationalGraphConv)

// WithName sets the layer name used as the prefix of parameter names.
func WithName(name string) Option {
	return func(l *RelationalGraphConv) { l.name = name }
}

// WithActivation sets the function applied to the layer output.
func WithActivation(a Activation) Option {
	return func(l *RelationalGraphConv) { l.activation = a }
}

// WithInitializer sets how the relation weights are filled at build.
func WithInitializer(i Initializer) Option {
	return func(l *RelationalGraphConv) { l.initializer = i }
}

// WithBias toggles adding the per-node bias.
func WithBias(useBias bool) Option {
	return func(l *RelationalGraphConv) { l.useBias = useBias }
}

// WithSelfLinks toggles the identity relation.
func WithSelfLinks(enabled bool) Option {
	return func(l *RelationalGraphConv) { l.selfLinks = enabled }
}

// WithConsecutiveLinks toggles the relation linking each node to its predecessor.
func WithConsecutiveLinks(enabled bool) Option {
	return func(l *RelationalGraphConv) { l.consecutiveLinks = enabled }
}

// WithBackwardLinks toggles the transposed copies of the forward relations.
func WithBackwardLinks(enabled bool) Option {
	return func(l *RelationalGraphConv) { l.backwardLinks = enabled }
}

// WithStructuralLinks sets the self, consecutive and backward link flags at once.
func WithStructuralLinks(self, consecutive, backward bool) Option {
	return func(l *RelationalGraphConv) {
		l.selfLinks = self
		l.consecutiveLinks = consecutive
		l.backwardLinks = backward
	}
}

// WithEdgeWeighting toggles learned per-relation edge gates.
func WithEdgeWeighting(enabled bool) Option {
	return func(l *RelationalGraphConv) { l.edgeWeighting = enabled }
}

// WithEdgeGating selects how edge gates combine across relations.
func WithEdgeGating(g EdgeGating) Option {
	return func(l *RelationalGraphConv) { l.edgeGating = g }
}

// WithWeightRegularizer penalizes the relation weights and edge gates.
func WithWeightRegularizer(r *L1L2) Option {
	return func(l *RelationalGraphConv) { l.weightRegularizer = r }
}

// WithBiasRegularizer penalizes the bias.
func WithBiasRegularizer(r *L1L2) Option {
	return func(l *RelationalGraphConv) { l.biasRegularizer = r }
}

// WithInitialWeights supplies parameter values, in Weights order, that
// replace the initializer output when the layer is built.
func WithInitialWeights(weights []*tensor.Tensor) Option {
	return func(l *RelationalGraphConv) { l.initialWeights = weights }
}

// WithSeed makes parameter initialization deterministic. Any value,
// zero included, is a valid seed. Without it the wall clock seeds Build.
func WithSeed(seed int64) Option {
	return func(l *RelationalGraphConv) {
		l.seed = seed
		l.seedSet = true
	}
}

// NewRelationalGraphConv creates an unbuilt layer producing outputDim
// features per node. Links default to enabled, edge weighting to disabled.
func NewRelationalGraphConv(outputDim int, opts ...Option) (*RelationalGraphConv, error) {
	if outputDim <= 0 {
		return nil, fmt.Errorf("%w: output_dim must be positive, got %d", ErrInvalidConfig, outputDim)
	}

	l := &RelationalGraphConv{
		outputDim:        outputDim,
		activation:       Linear,
		initializer:      GlorotUniform,
		useBias:          true,
		selfLinks:        true,
		consecutiveLinks: true,
		backwardLinks:    true,
		edgeGating:       GateCumulative,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.name == "" {
		l.name = fmt.Sprintf("spectral_graph_convolution_%d", layerCounter.Add(1))
	}
	if err := l.activation.validate(); err != nil {
		return nil, err
	}
	if err := l.initializer.validate(); err != nil {
		return nil, err
	}
	if err := l.edgeGating.validate(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *RelationalGraphConv) Name() string { return l.name }

func (l *RelationalGraphConv) OutputDim() int { return l.outputDim }

func (l *RelationalGraphConv) Built() bool { return l.built }

func (l *RelationalGraphConv) NumNodes() int { return l.numNodes }

func (l *RelationalGraphConv) NumFeatures() int { return l.numFeatures }

func (l *RelationalGraphConv) NumRelations() int { return l.numRelations }

func (l *RelationalGraphConv) NumAdjacencyMatrices() int { return l.numAdjacency }

func featureShape(inputShapes [][]int) ([]int, error) {
	if len(inputShapes) == 0 {
		return nil, fmt.Errorf("%w: missing feature shape", ErrShape)
	}
	fs := inputShapes[0]
	if len(fs) != 3 {
		return nil, fmt.Errorf("%w: feature shape must have 3 dimensions (batch, nodes, features), got %v", ErrShape, fs)
	}
	if fs[1] <= 0 || fs[2] <= 0 {
		return nil, fmt.Errorf("%w: feature shape %v has non-positive node or feature count", ErrShape, fs)
	}
	return fs, nil
}

// ComputeOutputShape returns (-1, num_nodes, output_dim); -1 marks the
// unknown batch dimension.
func (l *RelationalGraphConv) ComputeOutputShape(inputShapes [][]int) ([]int, error) {
	fs, err := featureShape(inputShapes)
	if err != nil {
		return nil, err
	}
	return []int{-1, fs[1], l.outputDim}, nil
}

// Build fixes the layer's shapes from the feature shape and one shape per
// raw relation, and allocates its parameters. Building an already built
// layer only checks that the shapes agree.
func (l *RelationalGraphConv) Build(inputShapes [][]int) error {
	fs, err := featureShape(inputShapes)
	if err != nil {
		return err
	}
	numNodes, numFeatures := fs[1], fs[2]
	numRelations := len(inputShapes) - 1

	for i, shape := range inputShapes[1:] {
		if len(shape) != 3 || shape[1] != numNodes || shape[2] != numNodes {
			return fmt.Errorf("%w: adjacency %d has shape %v, expected (batch, %d, %d)", ErrShape, i, shape, numNodes, numNodes)
		}
	}

	if l.built {
		return l.checkBuiltShapes(numNodes, numFeatures, numRelations)
	}

	numAdjacency := NumAdjacencyMatrices(numRelations, l.selfLinks, l.consecutiveLinks, l.backwardLinks)
	if numAdjacency == 0 {
		return fmt.Errorf("%w: no relations supplied and every structural link is disabled", ErrShape)
	}

	rng := tensor.NewClockRand()
	if l.seedSet {
		rng = tensor.NewRand(l.seed)
	}
	w := make([]*tensor.Tensor, numAdjacency)
	var wEdges []*tensor.Tensor
	if l.edgeWeighting {
		wEdges = make([]*tensor.Tensor, numAdjacency)
	}

	for i := 0; i < numAdjacency; i++ {
		if w[i], err = l.initializer.initialize([]int{numFeatures, l.outputDim}, rng); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", relationWeightName(l.name, i), err)
		}
		if l.edgeWeighting {
			if wEdges[i], err = tensor.Ones([]int{numNodes, numFeatures}, tensor.Float32); err != nil {
				return fmt.Errorf("failed to initialize %s: %w", edgeWeightName(l.name, i), err)
			}
		}
	}

	b, err := RandomUniform.initialize([]int{numNodes, l.outputDim}, rng)
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", biasName(l.name), err)
	}

	params := orderedParameters(w, wEdges, b)
	if l.initialWeights != nil {
		if err := assignWeights(params, l.initialWeights); err != nil {
			return err
		}
		l.initialWeights = nil
	}

	l.numNodes = numNodes
	l.numFeatures = numFeatures
	l.numRelations = numRelations
	l.numAdjacency = numAdjacency
	l.w = w
	l.wEdges = wEdges
	l.b = b
	l.built = true

	log().Debug("built graph convolution",
		zap.String("layer", l.name),
		zap.Int("nodes", numNodes),
		zap.Int("features", numFeatures),
		zap.Int("relations", numRelations),
		zap.Int("adjacency_matrices", numAdjacency),
		zap.Int64("parameters", l.ParameterCount()))

	return nil
}

func (l *RelationalGraphConv) checkBuiltShapes(numNodes, numFeatures, numRelations int) error {
	if numNodes != l.numNodes {
		return fmt.Errorf("%w: layer %s was built for %d nodes, got %d", ErrShape, l.name, l.numNodes, numNodes)
	}
	if numFeatures != l.numFeatures {
		return fmt.Errorf("%w: layer %s was built for %d input features, got %d", ErrShape, l.name, l.numFeatures, numFeatures)
	}
	if numRelations != l.numRelations {
		return fmt.Errorf("%w: layer %s was built for %d relations, got %d", ErrShape, l.name, l.numRelations, numRelations)
	}
	return nil
}

// Call runs the forward transform. The layer is built from the input
// shapes on the first call. features is never modified.
func (l *RelationalGraphConv) Call(features *tensor.Tensor, adjacency ...*tensor.Tensor) (*tensor.Tensor, error) {
	if features == nil {
		return nil, fmt.Errorf("%w: nil features", ErrShape)
	}

	shapes := make([][]int, 0, len(adjacency)+1)
	shapes = append(shapes, features.Shape)
	for i, a := range adjacency {
		if a == nil {
			return nil, fmt.Errorf("%w: nil adjacency %d", ErrShape, i)
		}
		if len(a.Shape) == 0 || len(features.Shape) == 0 || a.Shape[0] != features.Shape[0] {
			return nil, fmt.Errorf("%w: adjacency %d has shape %v, batch does not match features %v", ErrShape, i, a.Shape, features.Shape)
		}
		shapes = append(shapes, a.Shape)
	}
	if err := l.Build(shapes); err != nil {
		return nil, err
	}

	relations, err := l.ExpandAdjacency(features, adjacency)
	if err != nil {
		return nil, err
	}
	if len(relations) != l.numAdjacency {
		return nil, fmt.Errorf("layer %s expanded %d relations, expected %d", l.name, len(relations), l.numAdjacency)
	}

	gated := features
	ahws := make([]*tensor.Tensor, l.numAdjacency)
	for i, a := range relations {
		h := features
		if l.edgeWeighting {
			base := features
			if l.edgeGating == GateCumulative {
				base = gated
			}
			if gated, err = tensor.Mul(base, l.wEdges[i]); err != nil {
				return nil, fmt.Errorf("failed to gate features for relation %d: %w", i, err)
			}
			h = gated
		}

		hw, err := tensor.MatMul(h, l.w[i])
		if err != nil {
			return nil, fmt.Errorf("failed to project features for relation %d: %w", i, err)
		}
		if ahws[i], err = tensor.BatchMatMul(a, hw); err != nil {
			return nil, fmt.Errorf("failed to aggregate relation %d: %w", i, err)
		}
	}

	stacked, err := tensor.Stack(ahws, 1)
	if err != nil {
		return nil, err
	}
	output, err := tensor.Max(stacked, 1)
	if err != nil {
		return nil, err
	}

	if l.useBias {
		if output, err = tensor.Add(output, l.b); err != nil {
			return nil, fmt.Errorf("failed to add bias: %w", err)
		}
	}

	return l.activation.Apply(output)
}

// RegularizationLoss sums the configured penalties. The weight regularizer
// also covers the edge gates.
func (l *RelationalGraphConv) RegularizationLoss() float32 {
	if !l.built {
		return 0
	}

	var loss float32
	for i := range l.w {
		loss += l.weightRegularizer.Penalty(l.w[i])
		if l.edgeWeighting {
			loss += l.weightRegularizer.Penalty(l.wEdges[i])
		}
	}
	return loss + l.biasRegularizer.Penalty(l.b)
}
