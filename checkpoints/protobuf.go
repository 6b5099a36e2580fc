package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tsawler/go-relgcn/layers"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// The protobuf checkpoint is a google.protobuf.Struct with three fields:
// "model_spec" and "metadata" hold the JSON forms of those records, and
// "weights" is a list of structs whose "data" lists store every float32
// value as a double so the round trip is exact.

func (cs *CheckpointSaver) saveProtobuf(checkpoint *Checkpoint, path string) error {
	doc, err := checkpointToStruct(checkpoint)
	if err != nil {
		return err
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func (cs *CheckpointSaver) loadProtobuf(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	var doc structpb.Struct
	if err := proto.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return checkpointFromStruct(&doc)
}

func checkpointToStruct(checkpoint *Checkpoint) (*structpb.Struct, error) {
	spec, err := jsonValue(checkpoint.ModelSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model spec: %w", err)
	}
	metadata, err := jsonValue(checkpoint.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	weights := make([]*structpb.Value, len(checkpoint.Weights))
	for i, w := range checkpoint.Weights {
		shape := make([]*structpb.Value, len(w.Shape))
		for j, dim := range w.Shape {
			shape[j] = structpb.NewNumberValue(float64(dim))
		}
		values := make([]*structpb.Value, len(w.Data))
		for j, v := range w.Data {
			values[j] = structpb.NewNumberValue(float64(v))
		}

		weights[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name":  structpb.NewStringValue(w.Name),
			"layer": structpb.NewStringValue(w.Layer),
			"type":  structpb.NewStringValue(w.Type),
			"shape": structpb.NewListValue(&structpb.ListValue{Values: shape}),
			"data":  structpb.NewListValue(&structpb.ListValue{Values: values}),
		}})
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"model_spec": spec,
		"metadata":   metadata,
		"weights":    structpb.NewListValue(&structpb.ListValue{Values: weights}),
	}}, nil
}

func checkpointFromStruct(doc *structpb.Struct) (*Checkpoint, error) {
	var checkpoint Checkpoint

	if v, ok := doc.Fields["model_spec"]; ok {
		var spec *layers.ModelSpec
		if err := fromJSONValue(v, &spec); err != nil {
			return nil, fmt.Errorf("failed to decode model spec: %w", err)
		}
		checkpoint.ModelSpec = spec
	}
	if v, ok := doc.Fields["metadata"]; ok {
		if err := fromJSONValue(v, &checkpoint.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	for i, v := range doc.Fields["weights"].GetListValue().GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("failed to decode weight %d: not a struct", i)
		}

		w := WeightTensor{
			Name:  s.Fields["name"].GetStringValue(),
			Layer: s.Fields["layer"].GetStringValue(),
			Type:  s.Fields["type"].GetStringValue(),
		}
		for _, dim := range s.Fields["shape"].GetListValue().GetValues() {
			w.Shape = append(w.Shape, int(dim.GetNumberValue()))
		}
		values := s.Fields["data"].GetListValue().GetValues()
		w.Data = make([]float32, len(values))
		for j, x := range values {
			w.Data[j] = float32(x.GetNumberValue())
		}
		checkpoint.Weights = append(checkpoint.Weights, w)
	}

	return &checkpoint, nil
}

// jsonValue converts v to a structpb.Value through its JSON encoding.
func jsonValue(v interface{}) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

func fromJSONValue(v *structpb.Value, out interface{}) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
