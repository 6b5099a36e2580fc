package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/tsawler/go-relgcn/layers"
	"github.com/tsawler/go-relgcn/tensor"
	"go.uber.org/zap"
)

const (
	frameworkName    = "go-relgcn"
	checkpointFormat = "1.0.0"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	// FormatJSON writes indented JSON. JSON has no NaN or Inf, so every
	// weight value must be finite.
	FormatJSON CheckpointFormat = iota

	// FormatProtobuf writes a google.protobuf.Struct and keeps non-finite values.
	FormatProtobuf
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProtobuf:
		return "Protobuf"
	default:
		return "Unknown"
	}
}

// Checkpoint represents a model architecture together with its trained parameters
type Checkpoint struct {
	ModelSpec *layers.ModelSpec  `json:"model_spec"`
	Weights   []WeightTensor     `json:"weights"`
	Metadata  CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "edge_weight" or "bias"
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	ID          uuid.UUID `json:"id"`
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// NewCheckpoint snapshots the parameters of a built model.
func NewCheckpoint(model *layers.Model, description string, tags ...string) (*Checkpoint, error) {
	weights, err := ExtractWeights(model)
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		ModelSpec: model.Spec(),
		Weights:   weights,
		Metadata: CheckpointMetadata{
			ID:          uuid.New(),
			Version:     checkpointFormat,
			Framework:   frameworkName,
			CreatedAt:   time.Now().UTC(),
			Description: description,
			Tags:        tags,
		},
	}, nil
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil {
		return fmt.Errorf("cannot save nil checkpoint")
	}
	fillMetadata(&checkpoint.Metadata)

	var err error
	switch cs.format {
	case FormatJSON:
		err = cs.saveJSON(checkpoint, path)
	case FormatProtobuf:
		err = cs.saveProtobuf(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return err
	}

	log().Info("saved checkpoint",
		zap.String("path", path),
		zap.Stringer("format", cs.format),
		zap.Stringer("id", checkpoint.Metadata.ID),
		zap.Int("weights", len(checkpoint.Weights)))
	return nil
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	var (
		checkpoint *Checkpoint
		err        error
	)
	switch cs.format {
	case FormatJSON:
		checkpoint, err = cs.loadJSON(path)
	case FormatProtobuf:
		checkpoint, err = cs.loadProtobuf(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return nil, err
	}

	log().Info("loaded checkpoint",
		zap.String("path", path),
		zap.Stringer("format", cs.format),
		zap.Stringer("id", checkpoint.Metadata.ID),
		zap.Int("weights", len(checkpoint.Weights)))
	return checkpoint, nil
}

// fillMetadata sets defaults for checkpoints assembled by hand.
func fillMetadata(md *CheckpointMetadata) {
	if md.ID == uuid.Nil {
		md.ID = uuid.New()
	}
	if md.Framework == "" {
		md.Framework = frameworkName
		md.Version = checkpointFormat
	}
	if md.CreatedAt.IsZero() {
		md.CreatedAt = time.Now().UTC()
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	if err := checkFinite(checkpoint.Weights); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// ExtractWeights copies every parameter of a built model, in layer order
// and within a layer in Weights order.
func ExtractWeights(model *layers.Model) ([]WeightTensor, error) {
	if model == nil {
		return nil, fmt.Errorf("cannot extract weights from nil model")
	}

	var weights []WeightTensor
	for _, l := range model.Layers() {
		if !l.Built() {
			return nil, fmt.Errorf("%w: %s", layers.ErrNotBuilt, l.Name())
		}

		infos := l.ParameterInfo()
		for i, param := range l.Weights() {
			data, err := param.GetFloat32Data()
			if err != nil {
				return nil, fmt.Errorf("failed to extract %s: %w", infos[i].Name, err)
			}
			weights = append(weights, WeightTensor{
				Name:  infos[i].Name,
				Shape: append([]int(nil), infos[i].Shape...),
				Data:  append([]float32(nil), data...),
				Layer: l.Name(),
				Type:  infos[i].Kind,
			})
		}
	}

	return weights, nil
}

// LoadWeights writes checkpointed values into a built model. Every weight
// is matched by name and shape before any parameter is changed.
func LoadWeights(model *layers.Model, weights []WeightTensor) error {
	if model == nil {
		return fmt.Errorf("cannot load weights into nil model")
	}

	perLayer := make([][]*tensor.Tensor, len(model.Layers()))
	next := 0
	for li, l := range model.Layers() {
		if !l.Built() {
			return fmt.Errorf("%w: %s", layers.ErrNotBuilt, l.Name())
		}

		for _, info := range l.ParameterInfo() {
			if next >= len(weights) {
				return fmt.Errorf("%w: checkpoint has %d weights, model needs more", layers.ErrShapeMismatch, len(weights))
			}
			w := weights[next]
			next++

			if w.Name != info.Name {
				return fmt.Errorf("%w: expected weight %s, checkpoint has %s", layers.ErrShapeMismatch, info.Name, w.Name)
			}
			t, err := tensor.NewTensor(w.Shape, tensor.Float32, w.Data)
			if err != nil {
				return fmt.Errorf("%w: weight %s: %v", layers.ErrShapeMismatch, w.Name, err)
			}
			if !shapesEqual(t.Shape, info.Shape) {
				return fmt.Errorf("%w: weight %s has shape %v, expected %v", layers.ErrShapeMismatch, w.Name, w.Shape, info.Shape)
			}
			perLayer[li] = append(perLayer[li], t)
		}
	}
	if next != len(weights) {
		return fmt.Errorf("%w: checkpoint has %d weights, model uses %d", layers.ErrShapeMismatch, len(weights), next)
	}

	for li, l := range model.Layers() {
		if err := l.SetWeights(perLayer[li]); err != nil {
			return fmt.Errorf("failed to load weights for layer %s: %w", l.Name(), err)
		}
	}
	return nil
}

// RestoreModel rebuilds the checkpointed model and loads its weights.
func RestoreModel(checkpoint *Checkpoint, opts ...layers.Option) (*layers.Model, error) {
	if checkpoint == nil || checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint has no model spec")
	}

	model, err := checkpoint.ModelSpec.Instantiate(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate model: %w", err)
	}
	if err := LoadWeights(model, checkpoint.Weights); err != nil {
		return nil, err
	}
	return model, nil
}

// checkFinite names the first weight holding NaN or Inf.
func checkFinite(weights []WeightTensor) error {
	for _, w := range weights {
		for i, v := range w.Data {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return fmt.Errorf("cannot encode weight %s as JSON: element %d is %v", w.Name, i, v)
			}
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
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
