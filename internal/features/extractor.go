package features

import (
	"bytes"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Config contains feature extractor configuration.
type Config struct {
	// FeatureSize is the fixed output vector length. Must be at least
	// MinVectorLength so every segment fits.
	FeatureSize int `yaml:"feature_size" mapstructure:"feature_size"`
	// MaxTrackedNGrams caps the number of distinct n-grams counted per
	// n-gram size, bounding auxiliary memory for large inputs.
	MaxTrackedNGrams int `yaml:"max_tracked_ngrams" mapstructure:"max_tracked_ngrams"`
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{
		FeatureSize:      1000,
		MaxTrackedNGrams: 1 << 16,
	}
}

const headerScanWindow = 1000

// Executable header markers checked within the first headerScanWindow bytes.
var execHeaderMarkers = [][]byte{
	[]byte("MZ"),
	{'P', 'E', 0x00, 0x00},
}

// API name byte strings commonly imported by process-injecting malware.
var suspiciousAPIs = [][]byte{
	[]byte("CreateProcess"),
	[]byte("VirtualAlloc"),
	[]byte("WriteProcessMemory"),
	[]byte("CreateRemoteThread"),
	[]byte("LoadLibrary"),
	[]byte("GetProcAddress"),
	[]byte("WinExec"),
	[]byte("ShellExecute"),
}

// Textual markers (URLs, shell references, encoding markers). The `\x00`
// entry is the four-byte escaped literal as it appears in dropper scripts,
// not a NUL byte.
var suspiciousStrings = [][]byte{
	[]byte("http://"),
	[]byte("https://"),
	[]byte("ftp://"),
	[]byte(`\x00`),
	[]byte("cmd.exe"),
	[]byte("powershell"),
	[]byte("base64"),
	[]byte("shellcode"),
}

// Extractor converts raw bytes into fixed-length feature vectors. It holds
// no mutable state; Extract is a pure function of its input.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// NewExtractor creates a feature extractor.
func NewExtractor(cfg Config, logger *zap.Logger) (*Extractor, error) {
	if cfg.FeatureSize <= 0 {
		cfg.FeatureSize = DefaultConfig().FeatureSize
	}
	if cfg.MaxTrackedNGrams <= 0 {
		cfg.MaxTrackedNGrams = DefaultConfig().MaxTrackedNGrams
	}
	if cfg.FeatureSize < MinVectorLength {
		return nil, fmt.Errorf("feature_size %d is smaller than the segment layout (%d)", cfg.FeatureSize, MinVectorLength)
	}
	if cfg.MaxTrackedNGrams < NGramTopK {
		return nil, fmt.Errorf("max_tracked_ngrams %d must be at least %d", cfg.MaxTrackedNGrams, NGramTopK)
	}
	return &Extractor{cfg: cfg, logger: logger}, nil
}

// FeatureSize returns the configured output vector length.
func (e *Extractor) FeatureSize() int {
	return e.cfg.FeatureSize
}

// Extract builds the feature vector for data. Identical input always yields
// a bit-identical vector. Empty input fails with ErrEmptyInput; callers must
// reject empty files before invoking the pipeline.
func (e *Extractor) Extract(data []byte) (Vector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: nothing to extract", ErrEmptyInput)
	}

	var counts [ByteFreqSize]int
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))

	raw := make([]float64, 0, MinVectorLength)
	for _, c := range counts {
		raw = append(raw, float64(c)/total)
	}
	raw = append(raw, e.topNGramCounts(data, 2)...)
	raw = append(raw, e.topNGramCounts(data, 3)...)
	raw = append(raw, shannonEntropy(counts[:], len(data)))
	raw = append(raw, sectionHeuristics(data, counts[:])...)

	vec := make(Vector, e.cfg.FeatureSize)
	copy(vec, raw)
	return vec, nil
}

// shannonEntropy computes -sum(p*log2(p)) over the non-zero byte buckets.
func shannonEntropy(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	entropy := 0.0
	n := float64(total)
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// sectionHeuristics returns the executable-header flag, suspicious API and
// string ratios, and the code ratio.
func sectionHeuristics(data []byte, counts []int) []float64 {
	header := data
	if len(header) > headerScanWindow {
		header = header[:headerScanWindow]
	}
	marker := 0.0
	for _, sig := range execHeaderMarkers {
		if bytes.Contains(header, sig) {
			marker = 1.0
			break
		}
	}

	apiHits := 0
	for _, api := range suspiciousAPIs {
		if bytes.Contains(data, api) {
			apiHits++
		}
	}
	stringHits := 0
	for _, s := range suspiciousStrings {
		if bytes.Contains(data, s) {
			stringHits++
		}
	}

	printable := 0
	for b := 32; b <= 126; b++ {
		printable += counts[b]
	}
	codeRatio := 1.0 - float64(printable)/float64(len(data))

	return []float64{
		marker,
		float64(apiHits) / float64(len(suspiciousAPIs)),
		float64(stringHits) / float64(len(suspiciousStrings)),
		codeRatio,
	}
}
