package classify

// ScoringBackend is a pluggable inference engine for the trained classifier.
// The default build scores with the native forward pass; builds with the
// 'onnx' tag can delegate to ONNX Runtime when the model artifact names an
// exported graph.
type ScoringBackend interface {
	// Score returns one raw score per label class for a scaled vector.
	Score(scaled []float64) ([]float64, error)
	// Ready returns whether the backend is initialized and usable.
	Ready() bool
	// Close releases any native resources.
	Close() error
}

// NewScoringBackend creates a backend if supported by the current build.
// Implementations live in build-tagged files; the default (no build tags)
// returns nil to avoid CGO dependencies.
