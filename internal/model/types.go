package model

// Scaler holds per-dimension standardization parameters fitted at training
// time. Scale is the standard deviation per dimension; a zero scale is
// treated as 1 so constant dimensions pass through unchanged.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes vec without mutating it.
func (s *Scaler) Transform(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

// ConvLayer is one local-pattern compression stage: a 1-D convolution with
// ReLU activation, followed at inference time by a stride-2 max pool that
// halves the sequence length.
type ConvLayer struct {
	Weights [][][]float64 `json:"weights"` // [out_channel][in_channel][kernel]
	Bias    []float64     `json:"bias"`    // [out_channel]
}

// LSTMParams holds the sequential-aggregation stage parameters. Gate rows
// are ordered input, forget, cell, output.
type LSTMParams struct {
	InputSize  int         `json:"input_size"`
	HiddenSize int         `json:"hidden_size"`
	WeightsX   [][]float64 `json:"weights_x"` // [4*hidden][input]
	WeightsH   [][]float64 `json:"weights_h"` // [4*hidden][hidden]
	Bias       []float64   `json:"bias"`      // [4*hidden]
}

// DenseLayer is one fully-connected stage of the scoring head.
type DenseLayer struct {
	Weights [][]float64 `json:"weights"` // [out][in]
	Bias    []float64   `json:"bias"`    // [out]
}

// Network bundles the trained classifier parameters. The final dense layer
// emits one score per label class (benign, malicious).
type Network struct {
	Conv  []ConvLayer  `json:"conv"`
	LSTM  *LSTMParams  `json:"lstm"`
	Dense []DenseLayer `json:"dense"`
}

// TreeNode is one node of an isolation tree. Feature < 0 marks a leaf, in
// which case Size is the number of training samples that reached it.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// Tree is a single isolation tree stored as a node array rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Forest holds the anomaly-detector parameters.
type Forest struct {
	Trees      []Tree `json:"trees"`
	SampleSize int    `json:"sample_size"`
}

// Bundle is the serialized model artifact: classifier parameters, anomaly
// detector parameters and the feature scaler in a single document. OnnxModel
// optionally names an ONNX graph for builds with the onnx scoring backend.
type Bundle struct {
	Version     int      `json:"version"`
	FeatureSize int      `json:"feature_size"`
	Scaler      *Scaler  `json:"scaler"`
	Classifier  *Network `json:"classifier"`
	Anomaly     *Forest  `json:"anomaly,omitempty"`
	OnnxModel   string   `json:"onnx_model,omitempty"`
}

// State is the loaded-or-absent model variant. It is immutable after Load
// and shared by reference across concurrent analyses; absence means the
// pipeline runs in heuristic mode for the process lifetime.
type State struct {
	bundle *Bundle
}

// Absent returns the untrained state.
func Absent() *State {
	return &State{}
}

// Loaded reports whether a trained artifact backs this state.
func (s *State) Loaded() bool {
	return s.bundle != nil
}

// Scaler returns the feature scaler, or nil when absent.
func (s *State) Scaler() *Scaler {
	if s.bundle == nil {
		return nil
	}
	return s.bundle.Scaler
}

// Classifier returns the trained network, or nil when absent.
func (s *State) Classifier() *Network {
	if s.bundle == nil {
		return nil
	}
	return s.bundle.Classifier
}

// Anomaly returns the isolation forest, or nil when the artifact carries no
// anomaly-detector parameters.
func (s *State) Anomaly() *Forest {
	if s.bundle == nil {
		return nil
	}
	return s.bundle.Anomaly
}

// OnnxModel returns the optional ONNX graph path named by the artifact.
func (s *State) OnnxModel() string {
	if s.bundle == nil {
		return ""
	}
	return s.bundle.OnnxModel
}
