package explain

import (
	"math"
	"reflect"
	"testing"

	"github.com/raaihank/binsentinel/internal/classify"
	"github.com/raaihank/binsentinel/internal/features"
)

const testFeatureSize = 1000

// testVector builds a vector with the scalar section fields set and the
// byte-frequency segment left for the caller to fill.
func testVector(entropy, apiRatio, stringRatio, codeRatio float64) features.Vector {
	vec := make(features.Vector, testFeatureSize)
	vec[features.EntropyIndex] = entropy
	vec[features.SectionOffset+1] = apiRatio
	vec[features.SectionOffset+2] = stringRatio
	vec[features.SectionOffset+3] = codeRatio
	return vec
}

func TestGenerate_RiskFactorsNeverEmpty(t *testing.T) {
	g := New(Config{})

	exp := g.Generate(make(features.Vector, testFeatureSize), classify.LabelBenign)

	if len(exp.RiskFactors) != 1 {
		t.Fatalf("Expected exactly one risk factor, got %d", len(exp.RiskFactors))
	}
	if exp.RiskFactors[0] != "No obvious malicious patterns detected" {
		t.Errorf("Unexpected default risk factor: %q", exp.RiskFactors[0])
	}
	if len(exp.FeatureImportances) != 0 {
		t.Errorf("Zero vector should trigger no importances, got %d", len(exp.FeatureImportances))
	}
}

func TestGenerate_Rules(t *testing.T) {
	g := New(DefaultConfig())

	tests := []struct {
		name            string
		vec             features.Vector
		wantImportances []string
		wantRisks       []string
	}{
		{
			name:            "HighEntropy",
			vec:             testVector(7.5, 0, 0, 0),
			wantImportances: []string{"High Entropy"},
			wantRisks:       []string{"High entropy suggests packer/cryptor"},
		},
		{
			name:            "APIImportanceOnly",
			vec:             testVector(0, 0.4, 0, 0),
			wantImportances: []string{"Suspicious API Calls"},
			wantRisks:       []string{"No obvious malicious patterns detected"},
		},
		{
			name:            "APIRisk",
			vec:             testVector(0, 0.6, 0, 0),
			wantImportances: []string{"Suspicious API Calls"},
			wantRisks:       []string{"Multiple suspicious API functions detected"},
		},
		{
			name:            "StringImportanceOnly",
			vec:             testVector(0, 0, 0.25, 0),
			wantImportances: []string{"Suspicious Strings"},
			wantRisks:       []string{"No obvious malicious patterns detected"},
		},
		{
			name:            "StringRisk",
			vec:             testVector(0, 0, 0.5, 0),
			wantImportances: []string{"Suspicious Strings"},
			wantRisks:       []string{"Suspicious network-related strings found"},
		},
		{
			name:            "HighCodeRatio",
			vec:             testVector(0, 0, 0, 0.9),
			wantImportances: []string{"High Code Ratio"},
			wantRisks:       []string{"No obvious malicious patterns detected"},
		},
		{
			name: "AllRules",
			vec:  testVector(7.8, 0.75, 0.5, 0.95),
			wantImportances: []string{
				"High Entropy",
				"Suspicious API Calls",
				"Suspicious Strings",
				"High Code Ratio",
			},
			wantRisks: []string{
				"High entropy suggests packer/cryptor",
				"Multiple suspicious API functions detected",
				"Suspicious network-related strings found",
			},
		},
		{
			name:            "ThresholdsAreExclusive",
			vec:             testVector(7.0, 0.3, 0.2, 0.85),
			wantImportances: nil,
			wantRisks:       []string{"No obvious malicious patterns detected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := g.Generate(tt.vec, classify.LabelSuspicious)

			var names []string
			for _, imp := range exp.FeatureImportances {
				names = append(names, imp.Name)
			}
			if !reflect.DeepEqual(names, tt.wantImportances) {
				t.Errorf("Importances: expected %v, got %v", tt.wantImportances, names)
			}
			if !reflect.DeepEqual(exp.RiskFactors, tt.wantRisks) {
				t.Errorf("Risk factors: expected %v, got %v", tt.wantRisks, exp.RiskFactors)
			}
		})
	}
}

func TestGenerate_ImportanceValues(t *testing.T) {
	g := New(DefaultConfig())

	exp := g.Generate(testVector(7.5, 0.75, 0.5, 0.95), classify.LabelMalicious)

	want := map[string]float64{
		"High Entropy":         0.9,
		"Suspicious API Calls": 0.75,
		"Suspicious Strings":   0.5,
		"High Code Ratio":      0.7,
	}
	for _, imp := range exp.FeatureImportances {
		if w, ok := want[imp.Name]; !ok {
			t.Errorf("Unexpected importance %q", imp.Name)
		} else if math.Abs(imp.Importance-w) > 1e-9 {
			t.Errorf("%s: expected importance %v, got %v", imp.Name, w, imp.Importance)
		}
	}
}

func TestGenerate_ModelDecision(t *testing.T) {
	g := New(DefaultConfig())
	vec := make(features.Vector, testFeatureSize)

	tests := []struct {
		label classify.Label
		want  string
	}{
		{classify.LabelBenign, "Classified as benign based on feature analysis"},
		{classify.LabelSuspicious, "Classified as suspicious based on feature analysis"},
		{classify.LabelMalicious, "Classified as malicious based on feature analysis"},
	}
	for _, tt := range tests {
		if got := g.Generate(vec, tt.label).ModelDecision; got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestSuspiciousBytes(t *testing.T) {
	g := New(DefaultConfig())

	t.Run("OrderingAndTieBreak", func(t *testing.T) {
		vec := make(features.Vector, testFeatureSize)
		vec[features.ByteFreqOffset+10] = 0.05
		vec[features.ByteFreqOffset+200] = 0.30
		vec[features.ByteFreqOffset+7] = 0.05
		vec[features.ByteFreqOffset+3] = 0.009 // below the 1% floor

		got := g.Generate(vec, classify.LabelBenign).SuspiciousBytes
		if len(got) != 3 {
			t.Fatalf("Expected 3 suspicious bytes, got %d", len(got))
		}
		// Frequency descending, ties broken by ascending byte value.
		wantValues := []int{200, 7, 10}
		for i, w := range wantValues {
			if got[i].Value != w {
				t.Errorf("bytes[%d]: expected value %d, got %d", i, w, got[i].Value)
			}
		}
		if got[0].Sequence != "0xc8" {
			t.Errorf("Expected sequence 0xc8, got %q", got[0].Sequence)
		}
		if got[0].Note != "Byte 0xc8 appears 30.0% of the time" {
			t.Errorf("Unexpected note: %q", got[0].Note)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		vec := make(features.Vector, testFeatureSize)
		for i := 0; i < 20; i++ {
			vec[features.ByteFreqOffset+i] = 0.05
		}
		got := g.Generate(vec, classify.LabelBenign).SuspiciousBytes
		if len(got) != 10 {
			t.Fatalf("Expected the 10-byte cap, got %d", len(got))
		}
		for i, sb := range got {
			if sb.Value != i {
				t.Errorf("bytes[%d]: expected tie-broken value %d, got %d", i, i, sb.Value)
			}
		}
	})

	t.Run("FloorIsExclusive", func(t *testing.T) {
		vec := make(features.Vector, testFeatureSize)
		vec[features.ByteFreqOffset] = 0.01
		if got := g.Generate(vec, classify.LabelBenign).SuspiciousBytes; len(got) != 0 {
			t.Errorf("Frequency exactly at the floor must not qualify, got %d entries", len(got))
		}
	})
}

func TestConfidenceBreakdown(t *testing.T) {
	g := New(DefaultConfig())

	vec := make(features.Vector, testFeatureSize)
	for i := features.ByteFreqOffset; i < features.ByteFreqOffset+features.ByteFreqSize; i++ {
		vec[i] = 1.0 / 256.0
	}
	vec[features.EntropyIndex] = 6.2
	for i := features.SectionOffset; i < features.SectionOffset+features.SectionSize; i++ {
		vec[i] = 0.5
	}

	bd := g.Generate(vec, classify.LabelBenign).ConfidenceBreakdown

	for _, key := range []string{"byte_frequency", "ngram_patterns", "entropy_score", "section_analysis"} {
		if _, ok := bd[key]; !ok {
			t.Errorf("Breakdown missing key %q", key)
		}
	}
	if math.Abs(bd["byte_frequency"]-1.0/256.0) > 1e-9 {
		t.Errorf("byte_frequency: expected %v, got %v", 1.0/256.0, bd["byte_frequency"])
	}
	if bd["entropy_score"] != 6.2 {
		t.Errorf("entropy_score: expected 6.2, got %v", bd["entropy_score"])
	}
	if math.Abs(bd["section_analysis"]-0.5) > 1e-9 {
		t.Errorf("section_analysis: expected 0.5, got %v", bd["section_analysis"])
	}
	if bd["ngram_patterns"] != 0 {
		t.Errorf("ngram_patterns: expected 0, got %v", bd["ngram_patterns"])
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := New(DefaultConfig())
	vec := testVector(7.5, 0.6, 0.4, 0.9)
	vec[features.ByteFreqOffset+65] = 0.2

	a := g.Generate(vec, classify.LabelMalicious)
	b := g.Generate(vec, classify.LabelMalicious)

	if !reflect.DeepEqual(a, b) {
		t.Error("Generate must be deterministic for identical inputs")
	}
	if vec[features.ByteFreqOffset+65] != 0.2 {
		t.Error("Generate must not mutate its input")
	}
}
