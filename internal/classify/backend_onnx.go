//go:build onnx
// +build onnx

package classify

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxBackend scores vectors with ONNX Runtime (via yalue/onnxruntime_go).
type OnnxBackend struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	featureSize int
	logger      *zap.Logger
	ready       bool
	mu          sync.Mutex
}

// NewScoringBackend initializes the ONNX Runtime backend. Requires build tag
// 'onnx'. Returns nil on any initialization failure so the classifier can
// fall back to the native forward pass.
func NewScoringBackend(logger *zap.Logger, modelPath string, featureSize int) ScoringBackend {
	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no usable IO", zap.String("model", modelPath))
		return nil
	}
	inputName := inputsInfo[0].Name
	outputName := outputsInfo[0].Name

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		logger.Error("Failed to create ONNX session", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX scoring backend initialized",
		zap.String("model", modelPath),
		zap.String("input", inputName),
		zap.String("output", outputName))

	return &OnnxBackend{
		session:     session,
		inputName:   inputName,
		outputName:  outputName,
		featureSize: featureSize,
		logger:      logger,
		ready:       true,
	}
}

// Score runs one inference for a scaled feature vector and returns the raw
// class scores.
func (b *OnnxBackend) Score(scaled []float64) ([]float64, error) {
	if len(scaled) != b.featureSize {
		return nil, fmt.Errorf("backend expects %d features, got %d", b.featureSize, len(scaled))
	}

	values := make([]float32, len(scaled))
	for i, v := range scaled {
		values[i] = float32(v)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(values))), values)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	b.mu.Lock()
	err = b.session.Run([]ort.Value{input}, outputs)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer tensor.Destroy()

	raw := tensor.GetData()
	if len(raw) != 2 {
		return nil, fmt.Errorf("expected 2 class scores, got %d", len(raw))
	}
	return []float64{float64(raw[0]), float64(raw[1])}, nil
}

// Ready returns whether the backend is initialized.
func (b *OnnxBackend) Ready() bool {
	return b.ready
}

// Close releases the ONNX session.
func (b *OnnxBackend) Close() error {
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	b.ready = false
	return nil
}
