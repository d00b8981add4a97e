// Package scoring computes bounded [0,1] similarity between a normalized raw
// string and a master entity's name set, combining exact, abbreviation, and
// token/edit-distance measures.
package scoring

import (
	"github.com/agnivade/levenshtein"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/normalize"
)

// Scores assigned to the non-fuzzy methods. Exact equality is always exactly
// 1.0; an abbreviation hit outranks any fuzzy score but never an exact one.
const (
	exactScore        = 1.0
	abbreviationScore = 0.95
)

// Scorer scores raw strings against master entities. Stateless apart from the
// immutable abbreviation expander; safe for concurrent use.
type Scorer struct {
	expander  *normalize.Expander
	highFloor float64
	medFloor  float64
}

// NewScorer builds a scorer. highFloor/medFloor are the fuzzy tier
// boundaries, configuration policy rather than hard-coded law.
func NewScorer(expander *normalize.Expander, highFloor, medFloor float64) *Scorer {
	return &Scorer{expander: expander, highFloor: highFloor, medFloor: medFloor}
}

// Score compares a normalized raw string with one entity. The method tag
// follows priority order (exact, abbreviation, fuzzy) while the numeric score
// is the maximum achievable across methods, so downstream comparisons stay
// consistent. Returns false when the best score falls below the medium floor;
// such candidates are discarded, not returned.
func (s *Scorer) Score(normalizedRaw string, entity domain.MasterEntity) (domain.MatchCandidate, bool) {
	if normalizedRaw == "" {
		return domain.MatchCandidate{}, false
	}

	candidate := domain.MatchCandidate{
		EntityID:     entity.ID,
		EntityName:   entity.PrimaryName,
		TieBreakHint: entity.Scope.State,
	}

	names := entity.AllNames()

	// 1. Exact equality against the primary name or any alias.
	for _, name := range names {
		if normalizedRaw == normalize.Name(name) {
			candidate.Score = exactScore
			candidate.Method = domain.MethodExact
			return candidate, true
		}
	}

	// 2. Abbreviation equivalence, in either direction. The numeric score is
	// still the maximum achievable: a raw string that is also a near-verbatim
	// name keeps its higher fuzzy measure.
	if s.abbreviationHit(normalizedRaw, entity, names) {
		candidate.Score = abbreviationScore
		if fuzzy := bestFuzzy(normalizedRaw, names); fuzzy > candidate.Score {
			candidate.Score = fuzzy
		}
		candidate.Method = domain.MethodAbbreviationExpansion
		return candidate, true
	}

	// 3/4. Fuzzy: best of token-set and character similarity, across the raw
	// string and its abbreviation-expanded form.
	best := 0.0
	for _, query := range []string{normalizedRaw, s.expander.ExpandName(normalizedRaw)} {
		if score := bestFuzzy(query, names); score > best {
			best = score
		}
	}

	switch {
	case best >= s.highFloor:
		candidate.Score = best
		candidate.Method = domain.MethodFuzzyHigh
		return candidate, true
	case best >= s.medFloor:
		candidate.Score = best
		candidate.Method = domain.MethodFuzzyMedium
		return candidate, true
	}
	return domain.MatchCandidate{}, false
}

func (s *Scorer) abbreviationHit(normalizedRaw string, entity domain.MasterEntity, names []string) bool {
	for _, abbrev := range entity.Abbreviations {
		if normalizedRaw == normalize.Name(abbrev) {
			return true
		}
	}

	// The raw string is a generated short form of the primary name.
	for _, generated := range s.expander.Generate(normalize.Name(entity.PrimaryName)) {
		if normalizedRaw == generated {
			return true
		}
	}

	// A generated short form of the raw string lands on a known name,
	// alias, or abbreviation. Covers "GOVT MED COLL X" → "GMC X" → alias.
	known := make(map[string]struct{}, len(names)+len(entity.Abbreviations))
	for _, name := range names {
		known[normalize.Name(name)] = struct{}{}
	}
	for _, abbrev := range entity.Abbreviations {
		known[normalize.Name(abbrev)] = struct{}{}
	}
	for _, query := range []string{normalizedRaw, s.expander.ExpandName(normalizedRaw)} {
		for _, generated := range s.expander.Generate(query) {
			if _, ok := known[generated]; ok {
				return true
			}
		}
	}

	// The fully expanded raw string equals a known name.
	if expanded := s.expander.ExpandName(normalizedRaw); expanded != normalizedRaw {
		if _, ok := known[expanded]; ok {
			return true
		}
	}
	return false
}

// bestFuzzy is the best fuzzy score of one query against a name set.
func bestFuzzy(query string, names []string) float64 {
	best := 0.0
	for _, name := range names {
		if score := fuzzyScore(query, normalize.Name(name)); score > best {
			best = score
		}
	}
	return best
}

// fuzzyScore is max(tokenScore, charScore) for one (query, target) pair.
func fuzzyScore(query, target string) float64 {
	if query == "" || target == "" {
		return 0
	}
	token := tokenSetScore(query, target)
	char := charScore(query, target)
	if token > char {
		return token
	}
	return char
}

// tokenSetScore is the Jaccard index over stop-word-free token sets, damped
// by a length-ratio penalty so a short acronym cannot spuriously cover a long
// unrelated name.
func tokenSetScore(query, target string) float64 {
	qTokens := normalize.ContentTokens(query)
	tTokens := normalize.ContentTokens(target)
	if len(qTokens) == 0 || len(tTokens) == 0 {
		return 0
	}

	qSet := make(map[string]struct{}, len(qTokens))
	for _, t := range qTokens {
		qSet[t] = struct{}{}
	}
	tSet := make(map[string]struct{}, len(tTokens))
	for _, t := range tTokens {
		tSet[t] = struct{}{}
	}

	intersection := 0
	for t := range qSet {
		if _, ok := tSet[t]; ok {
			intersection++
		}
	}
	union := len(qSet) + len(tSet) - intersection
	if union == 0 {
		return 0
	}
	jaccard := float64(intersection) / float64(union)

	return jaccard * lengthPenalty(len(query), len(target))
}

// charScore is normalized edit distance: 1 - lev(a,b)/max(len(a),len(b)).
func charScore(query, target string) float64 {
	maxLen := len([]rune(query))
	if l := len([]rune(target)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(query, target)
	score := 1 - float64(distance)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// lengthPenalty is 1.0 while the shorter string is at least half the length
// of the longer, then falls off linearly.
func lengthPenalty(a, b int) float64 {
	shorter, longer := a, b
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if longer == 0 {
		return 0
	}
	ratio := float64(shorter) / float64(longer)
	if ratio >= 0.5 {
		return 1.0
	}
	return ratio * 2
}
