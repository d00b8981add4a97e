package normalize

import "strings"

// TextClass is the coarse category a classifier assigns to a text fragment.
type TextClass string

const (
	ClassInstitution TextClass = "institution"
	ClassAddress     TextClass = "address"
	ClassState       TextClass = "state"
	ClassUnknown     TextClass = "unknown"
)

// Classifier decides what a canonical text fragment most likely is. Strategies
// are swappable and individually testable; chain them for fallback behavior.
type Classifier interface {
	Classify(canonical string) TextClass
}

// GazetteerClassifier recognizes fragments by exact lookup in a curated name
// list, e.g. the 36 states/union territories.
type GazetteerClassifier struct {
	names map[string]TextClass
}

// NewStateGazetteer builds a gazetteer over canonical state names.
func NewStateGazetteer(states []string) *GazetteerClassifier {
	names := make(map[string]TextClass, len(states))
	for _, s := range states {
		names[Name(s)] = ClassState
	}
	return &GazetteerClassifier{names: names}
}

func (g *GazetteerClassifier) Classify(canonical string) TextClass {
	if class, ok := g.names[canonical]; ok {
		return class
	}
	return ClassUnknown
}

// KeywordClassifier decides by the presence of marker tokens.
type KeywordClassifier struct {
	institutionWords map[string]bool
	addressWords     map[string]bool
}

// NewKeywordClassifier builds the default keyword strategy.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		institutionWords: wordSet("COLLEGE", "INSTITUTE", "UNIVERSITY", "HOSPITAL",
			"ACADEMY", "SCHOOL", "CENTRE", "CENTER", "FACULTY", "COLL", "INST",
			"UNIV", "HOSP", "SCIENCES"),
		addressWords: wordSet("ROAD", "STREET", "POST", "TALUK", "TEHSIL", "VILLAGE",
			"NEAR", "OPPOSITE", "OPP", "BEHIND", "PIN", "PINCODE", "PO", "PS"),
	}
}

func (k *KeywordClassifier) Classify(canonical string) TextClass {
	institution, address := 0, 0
	for _, t := range Tokens(canonical) {
		if k.institutionWords[t] {
			institution++
		}
		if k.addressWords[t] {
			address++
		}
	}
	switch {
	case institution > address:
		return ClassInstitution
	case address > institution:
		return ClassAddress
	default:
		return ClassUnknown
	}
}

// LengthClassifier is the fallback heuristic: very short fragments are
// treated as abbreviated institution names, very long ones as addresses.
type LengthClassifier struct {
	ShortMax int // token count at or below which the fragment is a name
	LongMin  int // token count at or above which the fragment is an address
}

// NewLengthClassifier returns the default length thresholds.
func NewLengthClassifier() *LengthClassifier {
	return &LengthClassifier{ShortMax: 6, LongMin: 12}
}

func (l *LengthClassifier) Classify(canonical string) TextClass {
	n := len(Tokens(canonical))
	switch {
	case n == 0:
		return ClassUnknown
	case n <= l.ShortMax:
		return ClassInstitution
	case n >= l.LongMin:
		return ClassAddress
	default:
		return ClassUnknown
	}
}

// ChainClassifier runs strategies in order and returns the first non-unknown
// answer.
type ChainClassifier []Classifier

func (c ChainClassifier) Classify(canonical string) TextClass {
	for _, classifier := range c {
		if class := classifier.Classify(canonical); class != ClassUnknown {
			return class
		}
	}
	return ClassUnknown
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToUpper(w)] = true
	}
	return set
}
