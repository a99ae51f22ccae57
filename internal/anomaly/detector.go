package anomaly

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/raaihank/binsentinel/internal/features"
	"github.com/raaihank/binsentinel/internal/model"
)

// eulerMascheroni is used by the isolation-forest path-length normalization.
const eulerMascheroni = 0.5772156649015329

// Detector flags zero-day (out-of-distribution) samples with an isolation
// forest. Without trained parameters it conservatively reports every sample
// as not anomalous: the system never claims zero-day detection it cannot
// back with a model.
type Detector struct {
	featureSize int
	state       *model.State
	logger      *zap.Logger
}

// New creates a detector bound to the given model state.
func New(featureSize int, state *model.State, logger *zap.Logger) (*Detector, error) {
	if featureSize < features.MinVectorLength {
		return nil, fmt.Errorf("feature_size %d is smaller than the segment layout (%d)", featureSize, features.MinVectorLength)
	}

	d := &Detector{
		featureSize: featureSize,
		state:       state,
		logger:      logger,
	}
	logger.Info("Anomaly detector initialized",
		zap.Bool("trained", state.Loaded() && state.Anomaly() != nil))
	return d, nil
}

// Detect reports whether vec is anomalous relative to the training
// distribution. It never mutates vec or the model state.
func (d *Detector) Detect(vec features.Vector) (bool, error) {
	if len(vec) != d.featureSize {
		return false, fmt.Errorf("%w: got %d, want %d", features.ErrShapeMismatch, len(vec), d.featureSize)
	}

	forest := d.state.Anomaly()
	if !d.state.Loaded() || forest == nil {
		return false, nil
	}

	scaled := d.state.Scaler().Transform(vec)
	score := isolationScore(forest, scaled)

	// Scores above 0.5 sit in sparser regions than the training data; the
	// decision boundary mirrors the usual decision_function < 0 convention.
	decision := 0.5 - score
	return decision < 0, nil
}

// isolationScore computes s(x) = 2^(-E[h(x)] / c(n)) over the forest.
func isolationScore(f *model.Forest, x []float64) float64 {
	total := 0.0
	for i := range f.Trees {
		total += pathLength(&f.Trees[i], x)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/avgPathLength(float64(f.SampleSize)))
}

// pathLength walks x down the tree; leaves contribute the expected remaining
// depth for the samples they hold.
func pathLength(t *model.Tree, x []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Feature < 0 {
			return depth + avgPathLength(float64(node.Size))
		}
		if x[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// avgPathLength is c(n): the average path length of an unsuccessful search
// in a binary search tree of n nodes.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerMascheroni) - 2*(n-1)/n
}
