package model

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/raaihank/binsentinel/internal/features"
)

// ErrModelLoad indicates the artifact was missing, unreadable or structurally
// invalid. It is non-fatal: callers degrade to heuristic mode, but the
// condition must be surfaced to operators.
var ErrModelLoad = &features.AnalysisError{Type: "model_load", Message: "model artifact could not be loaded", Code: 1201}

// Load reads and validates the model artifact at path. The artifact must
// have been trained for the given feature size.
func Load(path string, featureSize int) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrModelLoad, path, err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrModelLoad, path, err)
	}

	if err := validateBundle(&bundle, featureSize); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}

	return &State{bundle: &bundle}, nil
}

// LoadBundle validates an in-memory bundle and wraps it in a loaded state.
func LoadBundle(b *Bundle) (*State, error) {
	if err := validateBundle(b, b.FeatureSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return &State{bundle: b}, nil
}

// LoadOrAbsent loads the artifact once at startup. Absence or corruption is
// logged and degrades to the absent (heuristic) state, never a fatal error.
func LoadOrAbsent(path string, featureSize int, logger *zap.Logger) *State {
	if path == "" {
		logger.Info("No model artifact configured, running in heuristic mode")
		return Absent()
	}

	state, err := Load(path, featureSize)
	if err != nil {
		logger.Warn("Model artifact unavailable, falling back to heuristic mode",
			zap.String("path", path),
			zap.Error(err))
		return Absent()
	}

	logger.Info("Model artifact loaded",
		zap.String("path", path),
		zap.Int("feature_size", featureSize),
		zap.Int("conv_stages", len(state.bundle.Classifier.Conv)),
		zap.Bool("anomaly_detector", state.bundle.Anomaly != nil),
		zap.Bool("onnx_model", state.bundle.OnnxModel != ""))
	return state
}

func validateBundle(b *Bundle, featureSize int) error {
	if b.FeatureSize != featureSize {
		return fmt.Errorf("artifact trained for feature size %d, configured %d", b.FeatureSize, featureSize)
	}
	if b.Scaler == nil {
		return fmt.Errorf("artifact is missing the feature scaler")
	}
	if len(b.Scaler.Mean) != featureSize || len(b.Scaler.Scale) != featureSize {
		return fmt.Errorf("scaler dimensions %d/%d do not match feature size %d",
			len(b.Scaler.Mean), len(b.Scaler.Scale), featureSize)
	}
	if b.Classifier == nil {
		return fmt.Errorf("artifact is missing classifier parameters")
	}
	if err := validateNetwork(b.Classifier); err != nil {
		return err
	}
	if b.Anomaly != nil {
		if len(b.Anomaly.Trees) == 0 {
			return fmt.Errorf("anomaly detector has no trees")
		}
		if b.Anomaly.SampleSize <= 1 {
			return fmt.Errorf("anomaly detector sample size %d is invalid", b.Anomaly.SampleSize)
		}
		for i, tree := range b.Anomaly.Trees {
			if err := validateTree(&tree, i, featureSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateTree range-checks every node so tree walks cannot index outside
// the vector or the node array at scan time.
func validateTree(t *Tree, idx, featureSize int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("anomaly tree %d is empty", idx)
	}
	for j, node := range t.Nodes {
		if node.Feature < 0 {
			continue
		}
		if node.Feature >= featureSize {
			return fmt.Errorf("anomaly tree %d node %d splits on feature %d, feature size is %d", idx, j, node.Feature, featureSize)
		}
		if node.Left < 0 || node.Left >= len(t.Nodes) || node.Right < 0 || node.Right >= len(t.Nodes) {
			return fmt.Errorf("anomaly tree %d node %d has a child index outside the %d-node array", idx, j, len(t.Nodes))
		}
	}
	return nil
}

func validateNetwork(n *Network) error {
	// The inner dimensions are walked end to end: the input starts as one
	// channel, each conv stage consumes the previous stage's channel count,
	// and the dense head consumes the aggregation hidden state.
	channels := 1
	for i, layer := range n.Conv {
		if len(layer.Weights) == 0 || len(layer.Weights) != len(layer.Bias) {
			return fmt.Errorf("conv stage %d has inconsistent channel count", i)
		}
		for o, kernels := range layer.Weights {
			if len(kernels) != channels {
				return fmt.Errorf("conv stage %d channel %d expects %d input channels, got %d", i, o, channels, len(kernels))
			}
			for c, kernel := range kernels {
				if len(kernel) == 0 {
					return fmt.Errorf("conv stage %d channel %d input %d has an empty kernel", i, o, c)
				}
			}
		}
		channels = len(layer.Weights)
	}
	if n.LSTM == nil {
		return fmt.Errorf("classifier is missing the sequential aggregation stage")
	}
	if n.LSTM.HiddenSize <= 0 || n.LSTM.InputSize <= 0 {
		return fmt.Errorf("aggregation stage has invalid dimensions")
	}
	if n.LSTM.InputSize != channels {
		return fmt.Errorf("aggregation stage expects %d input channels, conv stages emit %d", n.LSTM.InputSize, channels)
	}
	if len(n.LSTM.WeightsX) != 4*n.LSTM.HiddenSize ||
		len(n.LSTM.WeightsH) != 4*n.LSTM.HiddenSize ||
		len(n.LSTM.Bias) != 4*n.LSTM.HiddenSize {
		return fmt.Errorf("aggregation stage gate parameters do not match hidden size %d", n.LSTM.HiddenSize)
	}
	for g := range n.LSTM.WeightsX {
		if len(n.LSTM.WeightsX[g]) != n.LSTM.InputSize {
			return fmt.Errorf("aggregation gate row %d has input width %d, want %d", g, len(n.LSTM.WeightsX[g]), n.LSTM.InputSize)
		}
		if len(n.LSTM.WeightsH[g]) != n.LSTM.HiddenSize {
			return fmt.Errorf("aggregation gate row %d has hidden width %d, want %d", g, len(n.LSTM.WeightsH[g]), n.LSTM.HiddenSize)
		}
	}
	if len(n.Dense) == 0 {
		return fmt.Errorf("classifier is missing the dense scoring head")
	}
	width := n.LSTM.HiddenSize
	for i, layer := range n.Dense {
		if len(layer.Weights) == 0 || len(layer.Weights) != len(layer.Bias) {
			return fmt.Errorf("dense stage %d has inconsistent output count", i)
		}
		for o, row := range layer.Weights {
			if len(row) != width {
				return fmt.Errorf("dense stage %d row %d has input width %d, want %d", i, o, len(row), width)
			}
		}
		width = len(layer.Weights)
	}
	if width != 2 {
		return fmt.Errorf("scoring head must emit exactly 2 class scores, got %d", width)
	}
	return nil
}
