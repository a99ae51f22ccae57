package classify

// Label is the classification verdict for a sample.
type Label string

const (
	LabelBenign     Label = "benign"
	LabelSuspicious Label = "suspicious"
	LabelMalicious  Label = "malicious"
)

// Severity orders labels from benign (0) to malicious (2).
func (l Label) Severity() int {
	switch l {
	case LabelMalicious:
		return 2
	case LabelSuspicious:
		return 1
	default:
		return 0
	}
}
