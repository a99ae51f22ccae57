package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func zeroRows(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func validBundle(featureSize int) *Bundle {
	mean := make([]float64, featureSize)
	scale := make([]float64, featureSize)
	for i := range scale {
		scale[i] = 1
	}
	return &Bundle{
		Version:     1,
		FeatureSize: featureSize,
		Scaler:      &Scaler{Mean: mean, Scale: scale},
		Classifier: &Network{
			LSTM: &LSTMParams{
				InputSize:  1,
				HiddenSize: 2,
				WeightsX:   zeroRows(8, 1),
				WeightsH:   zeroRows(8, 2),
				Bias:       make([]float64, 8),
			},
			Dense: []DenseLayer{
				{Weights: zeroRows(2, 2), Bias: []float64{0, 0}},
			},
		},
		Anomaly: &Forest{
			SampleSize: 16,
			Trees: []Tree{
				{Nodes: []TreeNode{{Feature: -1, Size: 16}}},
			},
		},
	}
}

func writeBundle(t *testing.T, b *Bundle) string {
	t.Helper()
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	const featureSize = 8

	t.Run("Valid", func(t *testing.T) {
		path := writeBundle(t, validBundle(featureSize))
		state, err := Load(path, featureSize)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !state.Loaded() {
			t.Error("State should be loaded")
		}
		if state.Scaler() == nil || state.Classifier() == nil || state.Anomaly() == nil {
			t.Error("Loaded state should expose scaler, classifier and anomaly parameters")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("CorruptArtifact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
		_, err := Load(path, featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("FeatureSizeMismatch", func(t *testing.T) {
		path := writeBundle(t, validBundle(featureSize))
		_, err := Load(path, featureSize+1)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("MissingScaler", func(t *testing.T) {
		b := validBundle(featureSize)
		b.Scaler = nil
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("BadScoringHead", func(t *testing.T) {
		b := validBundle(featureSize)
		b.Classifier.Dense = []DenseLayer{{Weights: [][]float64{{0}}, Bias: []float64{0}}}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("TreeFeatureOutOfRange", func(t *testing.T) {
		// A tree splitting on a feature index beyond the vector length must
		// be rejected at load, not crash a later scan.
		b := validBundle(featureSize)
		b.Anomaly.Trees = []Tree{
			{Nodes: []TreeNode{
				{Feature: featureSize, Threshold: 0.5, Left: 1, Right: 2},
				{Feature: -1, Size: 8},
				{Feature: -1, Size: 8},
			}},
		}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("TreeChildOutOfRange", func(t *testing.T) {
		b := validBundle(featureSize)
		b.Anomaly.Trees = []Tree{
			{Nodes: []TreeNode{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 5},
				{Feature: -1, Size: 16},
			}},
		}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("GateRowWidthMismatch", func(t *testing.T) {
		b := validBundle(featureSize)
		b.Classifier.LSTM.WeightsX[3] = []float64{0, 0}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("ConvChannelMismatch", func(t *testing.T) {
		// First conv stage consumes one channel; a two-channel kernel set
		// cannot be applied to it.
		b := validBundle(featureSize)
		b.Classifier.Conv = []ConvLayer{
			{Weights: [][][]float64{{{0, 0, 0}, {0, 0, 0}}}, Bias: []float64{0}},
		}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("DenseWidthMismatch", func(t *testing.T) {
		b := validBundle(featureSize)
		b.Classifier.Dense = []DenseLayer{
			{Weights: zeroRows(2, 3), Bias: []float64{0, 0}},
		}
		_, err := Load(writeBundle(t, b), featureSize)
		if !errors.Is(err, ErrModelLoad) {
			t.Errorf("Expected ErrModelLoad, got %v", err)
		}
	})

	t.Run("NoAnomalyParameters", func(t *testing.T) {
		// An artifact without anomaly parameters is still valid; zero-day
		// detection simply stays disabled.
		b := validBundle(featureSize)
		b.Anomaly = nil
		state, err := Load(writeBundle(t, b), featureSize)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if state.Anomaly() != nil {
			t.Error("Anomaly parameters should be nil")
		}
	})
}

func TestLoadOrAbsent(t *testing.T) {
	logger := zap.NewNop()

	t.Run("EmptyPath", func(t *testing.T) {
		state := LoadOrAbsent("", 8, logger)
		if state.Loaded() {
			t.Error("Empty path should produce the absent state")
		}
	})

	t.Run("MissingArtifactDegrades", func(t *testing.T) {
		state := LoadOrAbsent(filepath.Join(t.TempDir(), "nope.json"), 8, logger)
		if state.Loaded() {
			t.Error("Missing artifact should degrade to the absent state")
		}
	})

	t.Run("ValidArtifact", func(t *testing.T) {
		path := writeBundle(t, validBundle(8))
		state := LoadOrAbsent(path, 8, logger)
		if !state.Loaded() {
			t.Error("Valid artifact should produce the loaded state")
		}
	})
}

func TestScalerTransform(t *testing.T) {
	s := &Scaler{Mean: []float64{1, 2, 0}, Scale: []float64{2, 0, 1}}
	in := []float64{3, 2, 5}

	out := s.Transform(in)

	want := []float64{1, 0, 5} // zero scale treated as 1
	for i, w := range want {
		if out[i] != w {
			t.Errorf("out[%d]: expected %v, got %v", i, w, out[i])
		}
	}
	if in[0] != 3 {
		t.Error("Transform must not mutate its input")
	}
}

func TestAbsentState(t *testing.T) {
	state := Absent()
	if state.Loaded() {
		t.Error("Absent state should not report loaded")
	}
	if state.Scaler() != nil || state.Classifier() != nil || state.Anomaly() != nil || state.OnnxModel() != "" {
		t.Error("Absent state accessors should return zero values")
	}
}
