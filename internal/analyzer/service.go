package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/binsentinel/internal/anomaly"
	"github.com/raaihank/binsentinel/internal/cache"
	"github.com/raaihank/binsentinel/internal/classify"
	"github.com/raaihank/binsentinel/internal/config"
	"github.com/raaihank/binsentinel/internal/explain"
	"github.com/raaihank/binsentinel/internal/features"
	"github.com/raaihank/binsentinel/internal/logger"
	"github.com/raaihank/binsentinel/internal/model"
)

// ErrExtractionIO indicates the sample bytes could not be read from disk.
var ErrExtractionIO = &features.AnalysisError{Type: "extraction_io", Message: "failed to read sample", Code: 1301}

// Result is the complete verdict for one byte sequence.
type Result struct {
	Label         classify.Label       `json:"prediction"`
	Confidence    float64              `json:"confidence"`
	ZeroDay       bool                 `json:"is_zero_day"`
	HeuristicMode bool                 `json:"heuristic_mode"`
	Explanation   *explain.Explanation `json:"explanation"`
}

// Record wraps a Result with scan provenance for reporting.
type Record struct {
	ID        string    `json:"scan_id"`
	File      string    `json:"file,omitempty"`
	Digest    string    `json:"sha256"`
	Size      int       `json:"size_bytes"`
	ScannedAt time.Time `json:"scanned_at"`
	*Result
}

// Service composes extraction, classification, anomaly detection and
// explanation into a single scan pipeline. It is safe for concurrent use.
type Service struct {
	cfg        *config.Config
	state      *model.State
	extractor  *features.Extractor
	classifier *classify.Classifier
	detector   *anomaly.Detector
	generator  *explain.Generator
	cache      *cache.ResultCache
	logger     *logger.Logger
}

// New builds the scan pipeline from configuration and a loaded (or absent)
// model state. The result cache is only connected when enabled.
func New(cfg *config.Config, state *model.State, log *logger.Logger) (*Service, error) {
	extractor, err := features.NewExtractor(features.Config{
		FeatureSize:      cfg.Analysis.FeatureSize,
		MaxTrackedNGrams: cfg.Analysis.MaxTrackedNGrams,
	}, log.WithComponent("features").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature extractor: %w", err)
	}

	classifier, err := classify.New(classify.Config{
		FeatureSize: cfg.Analysis.FeatureSize,
		Heuristic:   cfg.Analysis.Heuristic,
	}, state, log.WithComponent("classify").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	detector, err := anomaly.New(cfg.Analysis.FeatureSize, state, log.WithComponent("anomaly").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create anomaly detector: %w", err)
	}

	svc := &Service{
		cfg:        cfg,
		state:      state,
		extractor:  extractor,
		classifier: classifier,
		detector:   detector,
		generator:  explain.New(cfg.Analysis.Explain),
		logger:     log.WithComponent("analyzer"),
	}

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect result cache: %w", err)
		}
		svc.cache = resultCache
	}

	return svc, nil
}

// Digest returns the hex SHA-256 of the sample bytes, the identity used for
// cache keys and scan records.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Analyze runs the full pipeline over raw bytes. Identical inputs always
// yield identical results, which makes digest-keyed caching sound.
func (s *Service) Analyze(ctx context.Context, data []byte) (*Result, error) {
	digest := Digest(data)

	if s.cache != nil {
		if payload, ok := s.cache.Get(ctx, digest); ok {
			var cached Result
			if err := json.Unmarshal(payload, &cached); err == nil {
				s.logger.Debug("Returning cached verdict", zap.String("digest", digest))
				return &cached, nil
			}
			s.logger.Warn("Discarding corrupt cache entry", zap.String("digest", digest))
		}
	}

	start := time.Now()

	vec, err := s.extractor.Extract(data)
	if err != nil {
		return nil, err
	}

	label, confidence, err := s.classifier.Classify(vec)
	if err != nil {
		return nil, err
	}

	anomalous, err := s.detector.Detect(vec)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Label:         label,
		Confidence:    confidence,
		ZeroDay:       anomalous,
		HeuristicMode: !s.state.Loaded(),
		Explanation:   s.generator.Generate(vec, label),
	}

	s.logger.Debug("Scan pipeline completed",
		zap.String("digest", digest),
		zap.String("label", string(label)),
		zap.Float64("confidence", confidence),
		zap.Bool("anomalous", anomalous),
		zap.Duration("duration", time.Since(start)))

	if s.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			_ = s.cache.Put(ctx, digest, payload)
		}
	}

	return result, nil
}

// AnalyzeFile reads a file and scans it, returning a full scan record.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractionIO, path, err)
	}

	result, err := s.Analyze(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	record := &Record{
		ID:        uuid.New().String(),
		File:      path,
		Digest:    Digest(data),
		Size:      len(data),
		ScannedAt: time.Now().UTC(),
		Result:    result,
	}

	s.logger.LogVerdict(path, record.Digest, string(result.Label), result.Confidence, result.ZeroDay)
	return record, nil
}

// CacheStats reports result cache statistics, or nil when caching is off.
func (s *Service) CacheStats(ctx context.Context) (*cache.Stats, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.GetStats(ctx)
}

// Close releases the classifier backend and the cache connection.
func (s *Service) Close() error {
	var firstErr error
	if err := s.classifier.Close(); err != nil {
		firstErr = err
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
