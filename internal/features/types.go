package features

// Feature vector segment layout. The extractor concatenates segments in this
// order and pads or truncates the result to the configured feature size.
const (
	// ByteFreqSize is the number of byte-frequency buckets.
	ByteFreqSize = 256

	// NGramTopK is the number of most-frequent n-grams kept per n-gram size.
	NGramTopK = 200

	// SectionSize is the number of section heuristic values.
	SectionSize = 4

	// Fixed segment offsets; part of the vector layout contract.
	ByteFreqOffset = 0
	BigramOffset   = ByteFreqOffset + ByteFreqSize
	TrigramOffset  = BigramOffset + NGramTopK
	EntropyIndex   = TrigramOffset + NGramTopK
	SectionOffset  = EntropyIndex + 1

	// MinVectorLength is the smallest feature size that holds every segment.
	MinVectorLength = SectionOffset + SectionSize
)

// Vector is a fixed-length feature vector extracted from raw bytes. Its
// length always equals the configured feature size; the segment accessors
// below read the named sub-ranges.
type Vector []float64

// ByteFrequency returns the normalized byte-value histogram segment.
func (v Vector) ByteFrequency() []float64 {
	if len(v) < BigramOffset {
		return nil
	}
	return v[ByteFreqOffset:BigramOffset]
}

// BigramTop returns the top bigram frequency counts segment.
func (v Vector) BigramTop() []float64 {
	if len(v) < TrigramOffset {
		return nil
	}
	return v[BigramOffset:TrigramOffset]
}

// TrigramTop returns the top trigram frequency counts segment.
func (v Vector) TrigramTop() []float64 {
	if len(v) < EntropyIndex {
		return nil
	}
	return v[TrigramOffset:EntropyIndex]
}

// Entropy returns the Shannon entropy scalar, in [0, 8].
func (v Vector) Entropy() float64 {
	if len(v) <= EntropyIndex {
		return 0
	}
	return v[EntropyIndex]
}

// SectionHeuristics returns the four section heuristic values:
// executable-header marker, suspicious API ratio, suspicious string ratio
// and code ratio, in that order.
func (v Vector) SectionHeuristics() []float64 {
	if len(v) < MinVectorLength {
		return nil
	}
	return v[SectionOffset : SectionOffset+SectionSize]
}

// ExecHeaderMarker reports whether an executable header marker was seen
// (1.0) or not (0.0).
func (v Vector) ExecHeaderMarker() float64 {
	if len(v) < MinVectorLength {
		return 0
	}
	return v[SectionOffset]
}

// SuspiciousAPIRatio returns the fraction of tracked suspicious API names
// present in the input, in [0, 1].
func (v Vector) SuspiciousAPIRatio() float64 {
	if len(v) < MinVectorLength {
		return 0
	}
	return v[SectionOffset+1]
}

// SuspiciousStringRatio returns the fraction of tracked suspicious textual
// markers present in the input, in [0, 1].
func (v Vector) SuspiciousStringRatio() float64 {
	if len(v) < MinVectorLength {
		return 0
	}
	return v[SectionOffset+2]
}

// CodeRatio returns one minus the printable-byte fraction, in [0, 1].
func (v Vector) CodeRatio() float64 {
	if len(v) < MinVectorLength {
		return 0
	}
	return v[SectionOffset+3]
}

// AnalysisError is a typed error raised by the analysis pipeline.
type AnalysisError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *AnalysisError) Error() string {
	return e.Message
}

// Common error values. ErrShapeMismatch indicates an internal contract
// violation (a vector of the wrong length reached a consumer) and must never
// be silently coerced.
var (
	ErrEmptyInput    = &AnalysisError{Type: "empty_input", Message: "input buffer is empty", Code: 1101}
	ErrShapeMismatch = &AnalysisError{Type: "shape_mismatch", Message: "feature vector length does not match configured feature size", Code: 1102}
)
