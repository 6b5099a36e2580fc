package checkpoints

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/tsawler/go-relgcn/layers"
	"github.com/tsawler/go-relgcn/tensor"
)

func buildTestModel(t *testing.T, seed int64) *layers.Model {
	t.Helper()

	spec, err := layers.NewModelBuilder([]int{-1, 4, 3}, 2).
		AddGraphConvolution(5, "gcn1", layers.WithActivation(layers.ReLU), layers.WithEdgeWeighting(true)).
		AddGraphConvolution(2, "gcn2", layers.WithStructuralLinks(true, false, false)).
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile test model: %v", err)
	}

	model, err := spec.Instantiate(layers.WithSeed(seed))
	if err != nil {
		t.Fatalf("Failed to instantiate test model: %v", err)
	}
	return model
}

func TestCheckpointSaveLoad(t *testing.T) {
	formats := []CheckpointFormat{FormatJSON, FormatProtobuf}

	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			model := buildTestModel(t, 7)
			checkpoint, err := NewCheckpoint(model, "Test checkpoint", "test", "gcn")
			if err != nil {
				t.Fatalf("NewCheckpoint failed: %v", err)
			}

			saver := NewCheckpointSaver(format)
			path := filepath.Join(t.TempDir(), "checkpoint.bin")
			if err := saver.SaveCheckpoint(checkpoint, path); err != nil {
				t.Fatalf("Failed to save %s checkpoint: %v", format, err)
			}

			loaded, err := saver.LoadCheckpoint(path)
			if err != nil {
				t.Fatalf("Failed to load %s checkpoint: %v", format, err)
			}

			if !reflect.DeepEqual(loaded.Weights, checkpoint.Weights) {
				t.Error("Weights changed across save and load")
			}
			if loaded.Metadata.ID != checkpoint.Metadata.ID {
				t.Errorf("ID mismatch: expected %s, got %s", checkpoint.Metadata.ID, loaded.Metadata.ID)
			}
			if loaded.Metadata.Description != "Test checkpoint" {
				t.Errorf("Description mismatch: got %q", loaded.Metadata.Description)
			}
			if !reflect.DeepEqual(loaded.Metadata.Tags, []string{"test", "gcn"}) {
				t.Errorf("Tags mismatch: got %v", loaded.Metadata.Tags)
			}
			if !loaded.Metadata.CreatedAt.Equal(checkpoint.Metadata.CreatedAt) {
				t.Errorf("CreatedAt mismatch: expected %v, got %v", checkpoint.Metadata.CreatedAt, loaded.Metadata.CreatedAt)
			}

			if loaded.ModelSpec == nil {
				t.Fatal("Model spec was not restored")
			}
			if loaded.ModelSpec.TotalParameters != checkpoint.ModelSpec.TotalParameters {
				t.Errorf("TotalParameters mismatch: expected %d, got %d",
					checkpoint.ModelSpec.TotalParameters, loaded.ModelSpec.TotalParameters)
			}
			if !reflect.DeepEqual(loaded.ModelSpec.Layers[0].Config, checkpoint.ModelSpec.Layers[0].Config) {
				t.Errorf("Layer config mismatch: expected %+v, got %+v",
					checkpoint.ModelSpec.Layers[0].Config, loaded.ModelSpec.Layers[0].Config)
			}
		})
	}
}

func TestRestoreModelReproducesForward(t *testing.T) {
	original := buildTestModel(t, 3)
	checkpoint, err := NewCheckpoint(original, "restore")
	if err != nil {
		t.Fatalf("NewCheckpoint failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "checkpoint.pb")
	saver := NewCheckpointSaver(FormatProtobuf)
	if err := saver.SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	loaded, err := saver.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}

	// a different seed proves the values come from the checkpoint
	restored, err := RestoreModel(loaded, layers.WithSeed(99))
	if err != nil {
		t.Fatalf("RestoreModel failed: %v", err)
	}

	features, _ := tensor.RandomUniform([]int{2, 4, 3}, -1, 1, tensor.NewRand(1))
	a1, _ := tensor.RandomUniform([]int{2, 4, 4}, 0, 1, tensor.NewRand(2))
	a2, _ := tensor.RandomUniform([]int{2, 4, 4}, 0, 1, tensor.NewRand(3))

	want, err := original.Forward(features, a1, a2)
	if err != nil {
		t.Fatalf("Forward on original failed: %v", err)
	}
	got, err := restored.Forward(features, a1, a2)
	if err != nil {
		t.Fatalf("Forward on restored failed: %v", err)
	}
	if equal, _ := got.Equal(want); !equal {
		t.Error("Restored model output differs from the original")
	}
}

func TestExtractWeights(t *testing.T) {
	model := buildTestModel(t, 1)
	weights, err := ExtractWeights(model)
	if err != nil {
		t.Fatalf("ExtractWeights failed: %v", err)
	}

	// gcn1: 7 relations with edge gates plus bias; gcn2: 3 relations plus bias
	if len(weights) != 7*2+1+3+1 {
		t.Fatalf("Expected %d weights, got %d", 7*2+1+3+1, len(weights))
	}

	expected := []struct {
		name, layer, kind string
		shape             []int
	}{
		{"gcn1_W_rel_0", "gcn1", layers.ParamWeight, []int{3, 5}},
		{"gcn1_W_edge_0", "gcn1", layers.ParamEdgeWeight, []int{4, 3}},
		{"gcn1_b", "gcn1", layers.ParamBias, []int{4, 5}},
		{"gcn2_W_rel_0", "gcn2", layers.ParamWeight, []int{5, 2}},
		{"gcn2_b", "gcn2", layers.ParamBias, []int{4, 2}},
	}
	indices := []int{0, 1, 14, 15, 18}

	for i, e := range expected {
		w := weights[indices[i]]
		if w.Name != e.name || w.Layer != e.layer || w.Type != e.kind || !reflect.DeepEqual(w.Shape, e.shape) {
			t.Errorf("weight %d = {%s %s %s %v}, expected {%s %s %s %v}",
				indices[i], w.Name, w.Layer, w.Type, w.Shape, e.name, e.layer, e.kind, e.shape)
		}
	}

	weights[0].Data[0] = 1000
	if model.Layers()[0].Weights()[0].Data.([]float32)[0] == 1000 {
		t.Error("Extracted weights alias the model's parameters")
	}
}

func TestLoadWeightsValidatesBeforeCopy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]WeightTensor) []WeightTensor
	}{
		{"missing weight", func(w []WeightTensor) []WeightTensor { return w[:len(w)-1] }},
		{"extra weight", func(w []WeightTensor) []WeightTensor { return append(w, w[0]) }},
		{"renamed weight", func(w []WeightTensor) []WeightTensor {
			w[len(w)-1].Name = "other_b"
			return w
		}},
		{"wrong shape", func(w []WeightTensor) []WeightTensor {
			last := &w[len(w)-1]
			last.Shape = []int{last.Shape[1], last.Shape[0]}
			return w
		}},
		{"short data", func(w []WeightTensor) []WeightTensor {
			last := &w[len(w)-1]
			last.Data = last.Data[:1]
			return w
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			source, err := ExtractWeights(buildTestModel(t, 5))
			if err != nil {
				t.Fatalf("ExtractWeights failed: %v", err)
			}

			target := buildTestModel(t, 6)
			before, _ := ExtractWeights(target)

			err = LoadWeights(target, test.mutate(source))
			if !errors.Is(err, layers.ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch, got %v", err)
			}

			after, _ := ExtractWeights(target)
			if !reflect.DeepEqual(before, after) {
				t.Error("Failed load changed model parameters")
			}
		})
	}
}

func TestCheckpointFormatString(t *testing.T) {
	tests := []struct {
		format   CheckpointFormat
		expected string
	}{
		{FormatJSON, "JSON"},
		{FormatProtobuf, "Protobuf"},
		{CheckpointFormat(99), "Unknown"},
	}

	for _, test := range tests {
		if got := test.format.String(); got != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, got)
		}
	}
}

func TestUnsupportedCheckpointFormat(t *testing.T) {
	saver := NewCheckpointSaver(CheckpointFormat(99))
	path := filepath.Join(t.TempDir(), "checkpoint")

	if err := saver.SaveCheckpoint(&Checkpoint{}, path); err == nil {
		t.Error("Expected error for unsupported format on save")
	}
	if _, err := saver.LoadCheckpoint(path); err == nil {
		t.Error("Expected error for unsupported format on load")
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage")
	if err := os.WriteFile(garbage, []byte{0xff, 0x01, 0x7b}, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	for _, format := range []CheckpointFormat{FormatJSON, FormatProtobuf} {
		t.Run(format.String(), func(t *testing.T) {
			saver := NewCheckpointSaver(format)
			if _, err := saver.LoadCheckpoint(filepath.Join(dir, "missing")); err == nil {
				t.Error("Expected error for a missing file")
			}
			if _, err := saver.LoadCheckpoint(garbage); err == nil {
				t.Error("Expected error for a malformed file")
			}
		})
	}
}

func TestSaveFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "checkpoint")
	for _, format := range []CheckpointFormat{FormatJSON, FormatProtobuf} {
		if err := NewCheckpointSaver(format).SaveCheckpoint(&Checkpoint{}, path); err == nil {
			t.Errorf("%s: expected error for an unwritable path", format)
		}
	}
}

func TestCheckpointMetadataDefaults(t *testing.T) {
	checkpoint := &Checkpoint{}
	path := filepath.Join(t.TempDir(), "defaults.json")

	before := time.Now()
	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	md := checkpoint.Metadata
	if md.ID == uuid.Nil {
		t.Error("Expected a generated checkpoint ID")
	}
	if md.Framework != frameworkName || md.Version != checkpointFormat {
		t.Errorf("Unexpected framework/version: %s %s", md.Framework, md.Version)
	}
	if md.CreatedAt.Before(before.Add(-time.Second)) {
		t.Errorf("CreatedAt %v predates the save", md.CreatedAt)
	}
}

func TestNilModel(t *testing.T) {
	if _, err := ExtractWeights(nil); err == nil {
		t.Error("Expected error extracting from a nil model")
	}
	if err := LoadWeights(nil, nil); err == nil {
		t.Error("Expected error loading into a nil model")
	}
	if _, err := RestoreModel(&Checkpoint{}); err == nil {
		t.Error("Expected error restoring without a model spec")
	}
}

func TestNonFiniteWeights(t *testing.T) {
	newCheckpoint := func() *Checkpoint {
		return &Checkpoint{Weights: []WeightTensor{
			{Name: "gcn_W_rel_0", Shape: []int{1, 2}, Data: []float32{1, 2}, Layer: "gcn", Type: layers.ParamWeight},
			{Name: "gcn_b", Shape: []int{1, 3}, Data: []float32{math32.NaN(), math32.Inf(1), math32.Inf(-1)}, Layer: "gcn", Type: layers.ParamBias},
		}}
	}
	dir := t.TempDir()

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "nonfinite.json")
		err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(newCheckpoint(), path)
		if err == nil {
			t.Fatal("Expected error saving non-finite weights as JSON")
		}
		if !strings.Contains(err.Error(), "gcn_b") {
			t.Errorf("error %q does not name the offending weight", err)
		}
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Error("failed JSON save left a file behind")
		}
	})

	t.Run("Protobuf", func(t *testing.T) {
		path := filepath.Join(dir, "nonfinite.pb")
		saver := NewCheckpointSaver(FormatProtobuf)
		if err := saver.SaveCheckpoint(newCheckpoint(), path); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		loaded, err := saver.LoadCheckpoint(path)
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}

		data := loaded.Weights[1].Data
		if !math32.IsNaN(data[0]) || !math32.IsInf(data[1], 1) || !math32.IsInf(data[2], -1) {
			t.Errorf("non-finite values not preserved: %v", data)
		}
	})
}
