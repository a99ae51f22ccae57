//go:build !onnx
// +build !onnx

package classify

import (
	"go.uber.org/zap"
)

// Stub implementation used when the 'onnx' build tag is not set. The
// classifier falls back to the native forward pass.
func NewScoringBackend(logger *zap.Logger, modelPath string, featureSize int) ScoringBackend {
	return nil
}
