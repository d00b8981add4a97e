// Package normalize canonicalizes free-text institution, course, and state
// names ahead of matching. All functions are pure: the same input always
// produces the same output.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are stand-alone articles/conjunctions flagged for tokenized
// comparisons. They are never removed from the canonical string itself so
// exact matching keeps full information.
var stopWords = map[string]bool{
	"OF":  true,
	"THE": true,
	"AND": true,
	"FOR": true,
	"IN":  true,
	"AT":  true,
}

// IsStopWord reports whether a token is a flagged article/conjunction.
func IsStopWord(token string) bool {
	return stopWords[strings.ToUpper(token)]
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name canonicalizes a free-text name: uppercase, diacritics stripped,
// punctuation replaced by single spaces, whitespace collapsed.
func Name(raw string) string {
	if raw == "" {
		return ""
	}

	stripped, _, err := transform.String(diacriticStripper, raw)
	if err != nil {
		// Malformed input sequences fall back to the raw bytes; matching is
		// tolerant of the odd stray rune.
		stripped = raw
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits a canonical name into its whitespace tokens.
func Tokens(canonical string) []string {
	return strings.Fields(canonical)
}

// ContentTokens returns the tokens of a canonical name with stop words
// removed. Used by token-set comparisons, not by exact lookup.
func ContentTokens(canonical string) []string {
	fields := strings.Fields(canonical)
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// StripPincode removes 6-digit postal codes embedded in address-ish text.
// Source publications routinely append them to institution names.
func StripPincode(text string) string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		if len(f) == 6 && isAllDigits(f) {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// streamMap folds course-stream variations onto standard stream names.
var streamMap = map[string]string{
	"ALLOPATHY":  "MEDICAL",
	"MBBS":       "MEDICAL",
	"MD":         "MEDICAL",
	"MS":         "MEDICAL",
	"BDS":        "DENTAL",
	"MDS":        "DENTAL",
	"DENTISTRY":  "DENTAL",
	"AYURVEDA":   "AYURVEDA",
	"HOMEOPATHY": "HOMEOPATHY",
	"UNANI":      "UNANI",
	"SIDDHA":     "SIDDHA",
}

// Stream canonicalizes a course stream/type name.
func Stream(raw string) string {
	s := Name(raw)
	if mapped, ok := streamMap[s]; ok {
		return mapped
	}
	return s
}

// stateMap folds common state-name variants onto canonical spellings.
var stateMap = map[string]string{
	"ORISSA":        "ODISHA",
	"PONDICHERRY":   "PUDUCHERRY",
	"UTTARANCHAL":   "UTTARAKHAND",
	"NCT OF DELHI":  "DELHI",
	"NEW DELHI":     "DELHI",
	"JAMMU KASHMIR": "JAMMU AND KASHMIR",
	"J AND K":       "JAMMU AND KASHMIR",
	"TAMILNADU":     "TAMIL NADU",
	"CHATTISGARH":   "CHHATTISGARH",
	"TELENGANA":     "TELANGANA",
}

// State canonicalizes a state name.
func State(raw string) string {
	s := Name(raw)
	if mapped, ok := stateMap[s]; ok {
		return mapped
	}
	return s
}

// canonicalStates is the 36 states and union territories, canonical spellings.
var canonicalStates = []string{
	"ANDHRA PRADESH", "ARUNACHAL PRADESH", "ASSAM", "BIHAR", "CHHATTISGARH",
	"GOA", "GUJARAT", "HARYANA", "HIMACHAL PRADESH", "JHARKHAND", "KARNATAKA",
	"KERALA", "MADHYA PRADESH", "MAHARASHTRA", "MANIPUR", "MEGHALAYA",
	"MIZORAM", "NAGALAND", "ODISHA", "PUNJAB", "RAJASTHAN", "SIKKIM",
	"TAMIL NADU", "TELANGANA", "TRIPURA", "UTTAR PRADESH", "UTTARAKHAND",
	"WEST BENGAL",
	"ANDAMAN AND NICOBAR ISLANDS", "CHANDIGARH",
	"DADRA AND NAGAR HAVELI AND DAMAN AND DIU", "DELHI",
	"JAMMU AND KASHMIR", "LADAKH", "LAKSHADWEEP", "PUDUCHERRY",
}

// StateNames returns the canonical state and union territory names, including
// the variant spellings the state map folds away. Useful for seeding
// gazetteers.
func StateNames() []string {
	names := make([]string, 0, len(canonicalStates)+len(stateMap))
	names = append(names, canonicalStates...)
	for variant := range stateMap {
		names = append(names, variant)
	}
	return names
}
