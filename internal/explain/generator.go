package explain

import (
	"fmt"
	"sort"

	"github.com/raaihank/binsentinel/internal/classify"
	"github.com/raaihank/binsentinel/internal/features"
)

// Importance weights reported for the fixed-weight rules.
const (
	entropyImportance   = 0.9
	codeRatioImportance = 0.7
)

// FeatureImportance names one feature group that influenced the verdict.
type FeatureImportance struct {
	Name        string  `json:"feature_name"`
	Importance  float64 `json:"importance"`
	Description string  `json:"description"`
}

// SuspiciousByte records one unusually frequent byte value.
type SuspiciousByte struct {
	Value     int     `json:"byte_value"`
	Sequence  string  `json:"byte_sequence"`
	Frequency float64 `json:"frequency"`
	Note      string  `json:"note"`
}

// Explanation is the structured, human-readable account of a verdict.
// RiskFactors always holds at least one entry.
type Explanation struct {
	FeatureImportances  []FeatureImportance `json:"feature_importances"`
	SuspiciousBytes     []SuspiciousByte    `json:"suspicious_bytes"`
	ModelDecision       string              `json:"model_decision"`
	ConfidenceBreakdown map[string]float64  `json:"confidence_breakdown"`
	RiskFactors         []string            `json:"risk_factors"`
}

// Config exposes the rule thresholds. The values are load-bearing for the
// documented rule table.
type Config struct {
	EntropyHigh         float64 `yaml:"entropy_high" mapstructure:"entropy_high"`
	APIImportance       float64 `yaml:"api_importance" mapstructure:"api_importance"`
	APIRisk             float64 `yaml:"api_risk" mapstructure:"api_risk"`
	StringImportance    float64 `yaml:"string_importance" mapstructure:"string_importance"`
	StringRisk          float64 `yaml:"string_risk" mapstructure:"string_risk"`
	CodeRatioHigh       float64 `yaml:"code_ratio_high" mapstructure:"code_ratio_high"`
	ByteFrequencyFloor  float64 `yaml:"byte_frequency_floor" mapstructure:"byte_frequency_floor"`
	SuspiciousByteLimit int     `yaml:"suspicious_byte_limit" mapstructure:"suspicious_byte_limit"`
}

// DefaultConfig returns the stock rule thresholds.
func DefaultConfig() Config {
	return Config{
		EntropyHigh:         7.0,
		APIImportance:       0.3,
		APIRisk:             0.5,
		StringImportance:    0.2,
		StringRisk:          0.3,
		CodeRatioHigh:       0.85,
		ByteFrequencyFloor:  0.01,
		SuspiciousByteLimit: 10,
	}
}

// Generator derives explanations from feature vectors. It is stateless and
// safe for concurrent use; Generate is a pure function of its inputs.
type Generator struct {
	cfg Config
}

// New creates an explanation generator.
func New(cfg Config) *Generator {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Generator{cfg: cfg}
}

// Generate builds the explanation record for a vector and its resolved
// label. Every matching rule contributes; there is no early exit.
func (g *Generator) Generate(vec features.Vector, label classify.Label) *Explanation {
	entropy := vec.Entropy()
	apiRatio := vec.SuspiciousAPIRatio()
	stringRatio := vec.SuspiciousStringRatio()
	codeRatio := vec.CodeRatio()

	var importances []FeatureImportance
	var riskFactors []string

	if entropy > g.cfg.EntropyHigh {
		importances = append(importances, FeatureImportance{
			Name:        "High Entropy",
			Importance:  entropyImportance,
			Description: "File has high entropy indicating packed or encrypted code",
		})
		riskFactors = append(riskFactors, "High entropy suggests packer/cryptor")
	}
	if apiRatio > g.cfg.APIImportance {
		importances = append(importances, FeatureImportance{
			Name:        "Suspicious API Calls",
			Importance:  apiRatio,
			Description: "File contains multiple suspicious API calls",
		})
	}
	if apiRatio > g.cfg.APIRisk {
		riskFactors = append(riskFactors, "Multiple suspicious API functions detected")
	}
	if stringRatio > g.cfg.StringImportance {
		importances = append(importances, FeatureImportance{
			Name:        "Suspicious Strings",
			Importance:  stringRatio,
			Description: "File contains potentially malicious strings",
		})
	}
	if stringRatio > g.cfg.StringRisk {
		riskFactors = append(riskFactors, "Suspicious network-related strings found")
	}
	if codeRatio > g.cfg.CodeRatioHigh {
		importances = append(importances, FeatureImportance{
			Name:        "High Code Ratio",
			Importance:  codeRatioImportance,
			Description: "High ratio of executable code to data",
		})
	}

	if len(riskFactors) == 0 {
		riskFactors = append(riskFactors, "No obvious malicious patterns detected")
	}

	return &Explanation{
		FeatureImportances:  importances,
		SuspiciousBytes:     g.suspiciousBytes(vec.ByteFrequency()),
		ModelDecision:       fmt.Sprintf("Classified as %s based on feature analysis", label),
		ConfidenceBreakdown: confidenceBreakdown(vec),
		RiskFactors:         riskFactors,
	}
}

// suspiciousBytes selects the most frequent byte values above the frequency
// floor, ordered by frequency descending with ties broken by ascending byte
// value, limited to the configured count.
func (g *Generator) suspiciousBytes(byteFreq []float64) []SuspiciousByte {
	var candidates []SuspiciousByte
	for value, freq := range byteFreq {
		if freq > g.cfg.ByteFrequencyFloor {
			candidates = append(candidates, SuspiciousByte{
				Value:     value,
				Sequence:  fmt.Sprintf("0x%02x", value),
				Frequency: freq,
				Note:      fmt.Sprintf("Byte 0x%02x appears %.1f%% of the time", value, freq*100),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Frequency != candidates[j].Frequency {
			return candidates[i].Frequency > candidates[j].Frequency
		}
		return candidates[i].Value < candidates[j].Value
	})
	if len(candidates) > g.cfg.SuspiciousByteLimit {
		candidates = candidates[:g.cfg.SuspiciousByteLimit]
	}
	return candidates
}

// confidenceBreakdown reports the mean magnitude of each major segment; the
// entropy scalar is reported raw.
func confidenceBreakdown(vec features.Vector) map[string]float64 {
	ngrams := append(append([]float64{}, vec.BigramTop()...), vec.TrigramTop()...)
	return map[string]float64{
		"byte_frequency":   mean(vec.ByteFrequency()),
		"ngram_patterns":   mean(ngrams),
		"entropy_score":    vec.Entropy(),
		"section_analysis": mean(vec.SectionHeuristics()),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
