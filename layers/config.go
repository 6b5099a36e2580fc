package layers

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// GraphConvConfigRecord is the serializable configuration of a
// RelationalGraphConv. It reconstructs an equally configured layer, not
// its trained parameters.
type GraphConvConfigRecord struct {
	Name             string      `json:"name"`
	OutputDim        int         `json:"output_dim"`
	Init             Initializer `json:"init"`
	Activation       Activation  `json:"activation"`
	WRegularizer     *L1L2       `json:"W_regularizer"`
	BRegularizer     *L1L2       `json:"b_regularizer"`
	Bias             bool        `json:"bias"`
	SelfLinks        bool        `json:"self_links"`
	ConsecutiveLinks bool        `json:"consecutive_links"`
	BackwardLinks    bool        `json:"backward_links"`
	EdgeWeighting    bool        `json:"edge_weighting"`
	EdgeGating       EdgeGating  `json:"edge_gating,omitempty"`

	// InputDim is the node count the layer was built for, nil before build.
	InputDim *int `json:"input_dim"`
}

// Config exports the layer's configuration record.
func (l *RelationalGraphConv) Config() GraphConvConfigRecord {
	rec := GraphConvConfigRecord{
		Name:             l.name,
		OutputDim:        l.outputDim,
		Init:             l.initializer,
		Activation:       l.activation,
		WRegularizer:     copyRegularizer(l.weightRegularizer),
		BRegularizer:     copyRegularizer(l.biasRegularizer),
		Bias:             l.useBias,
		SelfLinks:        l.selfLinks,
		ConsecutiveLinks: l.consecutiveLinks,
		BackwardLinks:    l.backwardLinks,
		EdgeWeighting:    l.edgeWeighting,
		EdgeGating:       l.edgeGating,
	}
	if l.built {
		inputDim := l.numNodes
		rec.InputDim = &inputDim
	}
	return rec
}

func copyRegularizer(r *L1L2) *L1L2 {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// options turns the record back into construction options.
func (rec GraphConvConfigRecord) options() []Option {
	opts := []Option{
		WithName(rec.Name),
		WithWeightRegularizer(copyRegularizer(rec.WRegularizer)),
		WithBiasRegularizer(copyRegularizer(rec.BRegularizer)),
		WithBias(rec.Bias),
		WithStructuralLinks(rec.SelfLinks, rec.ConsecutiveLinks, rec.BackwardLinks),
		WithEdgeWeighting(rec.EdgeWeighting),
	}
	// empty identifiers keep the constructor defaults
	if rec.Init != "" {
		opts = append(opts, WithInitializer(rec.Init))
	}
	if rec.Activation != "" {
		opts = append(opts, WithActivation(rec.Activation))
	}
	if rec.EdgeGating != "" {
		opts = append(opts, WithEdgeGating(rec.EdgeGating))
	}
	return opts
}

// FromConfig creates an unbuilt layer configured like the record.
// InputDim is ignored; shapes are fixed again by the first Build.
func FromConfig(rec GraphConvConfigRecord, extra ...Option) (*RelationalGraphConv, error) {
	return NewRelationalGraphConv(rec.OutputDim, append(rec.options(), extra...)...)
}

// ToProto encodes the record as a google.protobuf.Struct.
func (rec GraphConvConfigRecord) ToProto() (*structpb.Struct, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config record: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode config record: %w", err)
	}
	return structpb.NewStruct(fields)
}

// ConfigRecordFromProto decodes a record produced by ToProto.
func ConfigRecordFromProto(s *structpb.Struct) (GraphConvConfigRecord, error) {
	var rec GraphConvConfigRecord
	if s == nil {
		return rec, fmt.Errorf("%w: nil config struct", ErrInvalidConfig)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return rec, fmt.Errorf("failed to decode config record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode config record: %w", err)
	}
	return rec, nil
}

// MarshalBinary encodes the record in protobuf wire format.
func (rec GraphConvConfigRecord) MarshalBinary() ([]byte, error) {
	s, err := rec.ToProto()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// UnmarshalBinary decodes a record written by MarshalBinary.
func (rec *GraphConvConfigRecord) UnmarshalBinary(data []byte) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal config record: %w", err)
	}
	decoded, err := ConfigRecordFromProto(&s)
	if err != nil {
		return err
	}
	*rec = decoded
	return nil
}
