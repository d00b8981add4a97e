package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchMethod records how a candidate score was obtained.
type MatchMethod string

const (
	MethodExact                 MatchMethod = "exact"
	MethodAbbreviationExpansion MatchMethod = "abbreviation_expansion"
	MethodFuzzyHigh             MatchMethod = "fuzzy_high"
	MethodFuzzyMedium           MatchMethod = "fuzzy_medium"
)

// ConfidenceTier buckets a decision by how it was reached.
type ConfidenceTier string

const (
	TierExact        ConfidenceTier = "exact"
	TierHigh         ConfidenceTier = "high"
	TierMedium       ConfidenceTier = "medium"
	TierLow          ConfidenceTier = "low"
	TierManualReview ConfidenceTier = "manual_review"
)

// Automatic reports whether the tier represents an engine-made match.
func (t ConfidenceTier) Automatic() bool {
	return t == TierExact || t == TierHigh || t == TierMedium
}

// Valid reports whether the tier is one of the known buckets.
func (t ConfidenceTier) Valid() bool {
	switch t {
	case TierExact, TierHigh, TierMedium, TierLow, TierManualReview:
		return true
	}
	return false
}

// SystemActor is the actor recorded for engine-made decisions.
const SystemActor = "system"

// MatchCandidate is the ephemeral outcome of scoring one raw string against
// one master entity. Candidates attached to a queued decision are snapshots
// kept solely so a reviewer can see the closest misses.
type MatchCandidate struct {
	EntityID     uuid.UUID   `json:"entity_id"`
	EntityName   string      `json:"entity_name,omitempty"`
	Score        float64     `json:"score"`
	Method       MatchMethod `json:"method"`
	TieBreakHint string      `json:"tie_break_hint,omitempty"`
}

// MatchDecision is the durable outcome for one (record, entity kind) pair.
// There is exactly one current decision per pair; superseded decisions stay
// readable through the audit trail.
type MatchDecision struct {
	ID           uuid.UUID        `json:"id"`
	RecordID     uuid.UUID        `json:"record_id"`
	EntityKind   EntityKind       `json:"entity_kind"`
	EntityID     *uuid.UUID       `json:"entity_id,omitempty"`
	Tier         ConfidenceTier   `json:"tier"`
	Score        float64          `json:"score"`
	Method       MatchMethod      `json:"method,omitempty"`
	Note         string           `json:"note,omitempty"`
	Candidates   []MatchCandidate `json:"candidates,omitempty"`
	DecidedBy    string           `json:"decided_by"`
	DecidedAt    time.Time        `json:"decided_at"`
	SupersedesID *uuid.UUID       `json:"supersedes_id,omitempty"`
}

// Validate enforces the tier/entity invariant: automatic tiers always carry
// an entity, review tiers may not yet.
func (d MatchDecision) Validate() error {
	if d.Tier.Automatic() && d.EntityID == nil {
		return ErrDecisionWithoutEntity
	}
	return nil
}
