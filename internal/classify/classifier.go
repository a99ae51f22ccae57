package classify

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/raaihank/binsentinel/internal/features"
	"github.com/raaihank/binsentinel/internal/model"
)

// HeuristicConfig exposes the fallback scoring thresholds. The values are
// load-bearing for the documented scoring contract; changing them changes
// verdicts.
type HeuristicConfig struct {
	EntropyHigh        float64 `yaml:"entropy_high" mapstructure:"entropy_high"`
	EntropyHighScore   float64 `yaml:"entropy_high_score" mapstructure:"entropy_high_score"`
	EntropyMedium      float64 `yaml:"entropy_medium" mapstructure:"entropy_medium"`
	EntropyMediumScore float64 `yaml:"entropy_medium_score" mapstructure:"entropy_medium_score"`
	APIWeight          float64 `yaml:"api_weight" mapstructure:"api_weight"`
	CodeRatioThreshold float64 `yaml:"code_ratio_threshold" mapstructure:"code_ratio_threshold"`
	CodeRatioScore     float64 `yaml:"code_ratio_score" mapstructure:"code_ratio_score"`
	MaliciousScore     float64 `yaml:"malicious_score" mapstructure:"malicious_score"`
	SuspiciousScore    float64 `yaml:"suspicious_score" mapstructure:"suspicious_score"`
	ConfidenceCap      float64 `yaml:"confidence_cap" mapstructure:"confidence_cap"`
}

// DefaultHeuristicConfig returns the stock heuristic tuning.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		EntropyHigh:        7.0,
		EntropyHighScore:   0.3,
		EntropyMedium:      6.5,
		EntropyMediumScore: 0.2,
		APIWeight:          0.4,
		CodeRatioThreshold: 0.8,
		CodeRatioScore:     0.3,
		MaliciousScore:     0.5,
		SuspiciousScore:    0.3,
		ConfidenceCap:      0.95,
	}
}

// Config contains classifier configuration.
type Config struct {
	FeatureSize int             `yaml:"feature_size" mapstructure:"feature_size"`
	Heuristic   HeuristicConfig `yaml:"heuristic" mapstructure:"heuristic"`
}

// Classifier maps feature vectors to (label, confidence). With a loaded
// model state it runs the trained scoring network; otherwise it applies the
// deterministic heuristic fallback. The classifier itself is stateless and
// safe for concurrent use.
type Classifier struct {
	cfg     Config
	state   *model.State
	backend ScoringBackend
	logger  *zap.Logger
}

// New creates a classifier bound to the given model state.
func New(cfg Config, state *model.State, logger *zap.Logger) (*Classifier, error) {
	if cfg.FeatureSize < features.MinVectorLength {
		return nil, fmt.Errorf("feature_size %d is smaller than the segment layout (%d)", cfg.FeatureSize, features.MinVectorLength)
	}
	if cfg.Heuristic == (HeuristicConfig{}) {
		cfg.Heuristic = DefaultHeuristicConfig()
	}

	c := &Classifier{
		cfg:    cfg,
		state:  state,
		logger: logger,
	}
	if state.Loaded() && state.OnnxModel() != "" {
		c.backend = NewScoringBackend(logger, state.OnnxModel(), cfg.FeatureSize)
	}

	logger.Info("Classifier initialized",
		zap.Bool("trained_mode", state.Loaded()),
		zap.Bool("onnx_backend", c.backend != nil),
		zap.Int("feature_size", cfg.FeatureSize))
	return c, nil
}

// Classify resolves the label and confidence for vec. A vector whose length
// does not match the configured feature size is a contract violation and
// fails with ErrShapeMismatch; no synthetic result is substituted.
func (c *Classifier) Classify(vec features.Vector) (Label, float64, error) {
	if len(vec) != c.cfg.FeatureSize {
		return "", 0, fmt.Errorf("%w: got %d, want %d", features.ErrShapeMismatch, len(vec), c.cfg.FeatureSize)
	}

	if !c.state.Loaded() {
		label, confidence := c.heuristic(vec)
		return label, confidence, nil
	}

	scaled := c.state.Scaler().Transform(vec)

	var scores []float64
	if c.backend != nil && c.backend.Ready() {
		backendScores, err := c.backend.Score(scaled)
		if err != nil {
			return "", 0, fmt.Errorf("scoring backend failed: %w", err)
		}
		scores = backendScores
	} else {
		scores = forward(c.state.Classifier(), scaled)
	}

	probs := softmax(scores)
	if probs[1] > probs[0] {
		return LabelMalicious, probs[1], nil
	}
	return LabelBenign, probs[0], nil
}

// heuristic is the fallback scorer: a deterministic, total function of the
// entropy, suspicious API ratio and code ratio features.
func (c *Classifier) heuristic(vec features.Vector) (Label, float64) {
	h := c.cfg.Heuristic

	score := 0.0
	entropy := vec.Entropy()
	switch {
	case entropy > h.EntropyHigh:
		score += h.EntropyHighScore
	case entropy > h.EntropyMedium:
		score += h.EntropyMediumScore
	}
	score += vec.SuspiciousAPIRatio() * h.APIWeight
	if vec.CodeRatio() > h.CodeRatioThreshold {
		score += h.CodeRatioScore
	}

	confidence := math.Min(score, h.ConfidenceCap)
	switch {
	case score > h.MaliciousScore:
		return LabelMalicious, confidence
	case score > h.SuspiciousScore:
		return LabelSuspicious, confidence
	default:
		return LabelBenign, 1.0 - confidence
	}
}

// Close releases backend resources, if any.
func (c *Classifier) Close() error {
	if c.backend != nil {
		return c.backend.Close()
	}
	return nil
}

// softmax converts raw class scores to a probability distribution.
func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	sum := 0.0
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
