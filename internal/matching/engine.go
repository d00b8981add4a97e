// Package matching implements the progressive, confidence-scored matching
// engine. Each raw record walks four ordered passes — exact, high-confidence
// fuzzy, medium-confidence fuzzy, manual-review routing — and every outcome
// is committed together with its audit entry.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/normalize"
	"github.com/admitgrid/reconcile/internal/repository"
	"github.com/admitgrid/reconcile/internal/scoring"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Policy carries the configurable matching thresholds. The numeric defaults
// are starting points, not validated optima; treat them as tunable.
type Policy struct {
	HighFloor       float64       // pass 2 acceptance floor
	MediumFloor     float64       // pass 3 acceptance floor
	TieBand         float64       // score distance treated as a tie
	Workers         int           // concurrent record evaluations
	TopCandidates   int           // closest misses kept for reviewers
	RegistryRetries int           // lookup attempts before giving up
	RegistryBackoff time.Duration // base backoff between retry attempts
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		HighFloor:       0.9,
		MediumFloor:     0.8,
		TieBand:         0.01,
		Workers:         4,
		TopCandidates:   5,
		RegistryRetries: 3,
		RegistryBackoff: 200 * time.Millisecond,
	}
}

// BatchResult is the outcome of one matching run.
type BatchResult struct {
	Decided []domain.MatchDecision `json:"decided"`
	Queued  []domain.MatchDecision `json:"queued"`
	Stats   BatchStats             `json:"stats"`
}

// BatchStats counts outcomes per pass.
type BatchStats struct {
	Total               int `json:"total"`
	Pass1Exact          int `json:"pass1_exact"`
	Pass2High           int `json:"pass2_high"`
	Pass3Medium         int `json:"pass3_medium"`
	Queued              int `json:"queued"`
	ValidationRejected  int `json:"validation_rejected"`
	Ambiguous           int `json:"ambiguous"`
	RegistryUnavailable int `json:"registry_unavailable"`
	Failed              int `json:"failed"`
}

// Engine evaluates raw records of one entity kind against the master
// registry. Safe for concurrent use; all state is per-call.
type Engine struct {
	kind      domain.EntityKind
	registry  repository.MasterRegistry
	committer repository.DecisionCommitter
	scorer    *scoring.Scorer
	expander  *normalize.Expander
	policy    Policy
	logger    zerolog.Logger
}

// NewEngine wires a matching engine for one entity kind.
func NewEngine(kind domain.EntityKind, registry repository.MasterRegistry, committer repository.DecisionCommitter, expander *normalize.Expander, policy Policy, logger zerolog.Logger) *Engine {
	if policy.Workers <= 0 {
		policy.Workers = 1
	}
	if policy.TopCandidates <= 0 {
		policy.TopCandidates = 5
	}
	return &Engine{
		kind:      kind,
		registry:  registry,
		committer: committer,
		scorer:    scoring.NewScorer(expander, policy.HighFloor, policy.MediumFloor),
		expander:  expander,
		policy:    policy,
		logger:    logger.With().Str("component", "matching").Str("kind", string(kind)).Logger(),
	}
}

// RunBatch evaluates a batch of records. Records are independent, so they
// fan out across workers; cancellation is cooperative — a cancelled context
// stops new evaluations but never abandons a record mid-flight, so committed
// decisions stay intact.
func (e *Engine) RunBatch(ctx context.Context, records []domain.RawRecord) (BatchResult, error) {
	result := BatchResult{Stats: BatchStats{Total: len(records)}}
	if len(records) == 0 {
		return result, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan domain.RawRecord)
	)

	worker := func() {
		defer wg.Done()
		for record := range jobs {
			decision, err := e.evaluate(ctx, record)

			mu.Lock()
			switch {
			case err != nil:
				result.Stats.Failed++
				e.logger.Error().Err(err).Str("record", record.ID.String()).Msg("record evaluation failed")
			case decision.Tier == domain.TierManualReview:
				result.Queued = append(result.Queued, decision)
				result.Stats.Queued++
				e.tallyQueued(&result.Stats, decision)
			default:
				result.Decided = append(result.Decided, decision)
				e.tallyDecided(&result.Stats, decision)
			}
			mu.Unlock()
		}
	}

	wg.Add(e.policy.Workers)
	for i := 0; i < e.policy.Workers; i++ {
		go worker()
	}

dispatch:
	for _, record := range records {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- record:
		}
	}
	close(jobs)
	wg.Wait()

	// Deterministic output order regardless of worker interleaving.
	sort.Slice(result.Decided, func(i, j int) bool {
		return result.Decided[i].RecordID.String() < result.Decided[j].RecordID.String()
	})
	sort.Slice(result.Queued, func(i, j int) bool {
		return result.Queued[i].RecordID.String() < result.Queued[j].RecordID.String()
	})

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch cancelled after %d records: %w",
			len(result.Decided)+len(result.Queued), err)
	}
	return result, nil
}

func (e *Engine) tallyDecided(stats *BatchStats, decision domain.MatchDecision) {
	switch decision.Tier {
	case domain.TierExact:
		stats.Pass1Exact++
	case domain.TierHigh:
		stats.Pass2High++
	case domain.TierMedium:
		stats.Pass3Medium++
	}
}

func (e *Engine) tallyQueued(stats *BatchStats, decision domain.MatchDecision) {
	switch {
	case errors.Is(errFromNote(decision.Note), domain.ErrValidation):
		stats.ValidationRejected++
	case errors.Is(errFromNote(decision.Note), domain.ErrAmbiguousMatch):
		stats.Ambiguous++
	case errors.Is(errFromNote(decision.Note), domain.ErrRegistryUnavailable):
		stats.RegistryUnavailable++
	}
}

// evaluate walks one record through the passes and commits its decision.
func (e *Engine) evaluate(ctx context.Context, record domain.RawRecord) (domain.MatchDecision, error) {
	// Malformed records never enter scoring.
	if err := record.Validate(); err != nil {
		return e.commitQueued(ctx, record, nil, noteValidation, err.Error())
	}

	rawText := e.rawTextOf(record)
	normalized := normalize.Name(normalize.StripPincode(rawText))
	if normalized == "" {
		return e.commitQueued(ctx, record, nil, noteValidation, "matching text empty after normalization")
	}

	// Pass 1: exact lookup against primary names and aliases.
	entityID, found, err := e.lookupExact(ctx, normalized)
	if err == nil && found {
		return e.commitDecided(ctx, record, domain.MatchCandidate{
			EntityID: entityID,
			Score:    1.0,
			Method:   domain.MethodExact,
		}, domain.TierExact)
	}
	if err != nil {
		return e.commitQueued(ctx, record, nil, noteRegistry, err.Error())
	}

	// Passes 2 and 3 share one scope-bounded scoring sweep.
	scope := e.scopeOf(record)
	candidates, err := e.scoreCandidates(ctx, normalized, scope)
	if err != nil {
		return e.commitQueued(ctx, record, nil, noteRegistry, err.Error())
	}
	if len(candidates) == 0 {
		return e.commitQueued(ctx, record, nil, noteNoCandidates, "no candidate scored at or above the medium floor")
	}

	best, ambiguous := e.pickBest(candidates, scope)
	if ambiguous {
		return e.commitQueued(ctx, record, candidates, noteAmbiguous,
			fmt.Sprintf("top candidates within %.3f of each other with no resolving scope hint", e.policy.TieBand))
	}

	// Pass 2: high-confidence acceptance.
	if best.Score >= e.policy.HighFloor {
		return e.commitDecided(ctx, record, best, domain.TierHigh)
	}

	// Pass 3: medium-confidence acceptance, flagged for audit sampling.
	if best.Score >= e.policy.MediumFloor {
		return e.commitDecided(ctx, record, best, domain.TierMedium)
	}

	// Pass 4: nothing acceptable.
	return e.commitQueued(ctx, record, candidates, noteNoCandidates, "best candidate below the medium floor")
}

func (e *Engine) rawTextOf(record domain.RawRecord) string {
	if e.kind == domain.EntityKindCourse {
		return record.CourseText
	}
	return record.InstitutionText
}

func (e *Engine) scopeOf(record domain.RawRecord) domain.ScopeHints {
	scope := domain.ScopeHints{}
	if e.kind == domain.EntityKindCollege && record.StateText != "" {
		scope.State = normalize.State(record.StateText)
	}
	return scope
}

func (e *Engine) lookupExact(ctx context.Context, normalized string) (uuid.UUID, bool, error) {
	var (
		id    uuid.UUID
		found bool
	)
	err := e.withRegistryRetry(ctx, func() error {
		var lookupErr error
		id, found, lookupErr = e.registry.LookupByExactName(ctx, e.kind, normalized)
		return lookupErr
	})
	return id, found, err
}

// scoreCandidates scores the normalized text against every scope-bounded
// registry entity, keeping only candidates at or above the medium floor,
// best first.
func (e *Engine) scoreCandidates(ctx context.Context, normalized string, scope domain.ScopeHints) ([]domain.MatchCandidate, error) {
	var entities []domain.MasterEntity
	err := e.withRegistryRetry(ctx, func() error {
		var lookupErr error
		entities, lookupErr = e.registry.CandidatesByScope(ctx, e.kind, scope)
		return lookupErr
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.MatchCandidate, 0, 8)
	for _, entity := range entities {
		if candidate, ok := e.scorer.Score(normalized, entity); ok {
			candidates = append(candidates, candidate)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// pickBest applies the tie-break rule: candidates within the tie band are
// disambiguated by scope hint; if that fails, the record is ambiguous and
// goes to review regardless of score.
func (e *Engine) pickBest(candidates []domain.MatchCandidate, scope domain.ScopeHints) (domain.MatchCandidate, bool) {
	best := candidates[0]
	if len(candidates) == 1 {
		return best, false
	}

	runnerUp := candidates[1]
	if best.Score-runnerUp.Score > e.policy.TieBand {
		return best, false
	}

	if scope.State != "" {
		bestMatches := best.TieBreakHint == scope.State
		runnerMatches := runnerUp.TieBreakHint == scope.State
		if bestMatches && !runnerMatches {
			return best, false
		}
		if runnerMatches && !bestMatches {
			return runnerUp, false
		}
	}
	return best, true
}

// withRegistryRetry retries registry failures with bounded exponential
// backoff; any other error aborts immediately.
func (e *Engine) withRegistryRetry(ctx context.Context, fn func() error) error {
	backoff := e.policy.RegistryBackoff
	var lastErr error
	for attempt := 0; attempt < e.policy.RegistryRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrRegistryUnavailable) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func (e *Engine) commitDecided(ctx context.Context, record domain.RawRecord, best domain.MatchCandidate, tier domain.ConfidenceTier) (domain.MatchDecision, error) {
	entityID := best.EntityID
	decision := domain.MatchDecision{
		ID:         uuid.New(),
		RecordID:   record.ID,
		EntityKind: e.kind,
		EntityID:   &entityID,
		Tier:       tier,
		Score:      best.Score,
		Method:     best.Method,
		DecidedBy:  domain.SystemActor,
		DecidedAt:  time.Now().UTC(),
	}
	entry := domain.AuditLogEntry{
		ID:           uuid.New(),
		Timestamp:    decision.DecidedAt,
		Actor:        domain.SystemActor,
		Action:       domain.ActionApprove,
		SubjectKind:  domain.SubjectRecord,
		SubjectID:    record.ID,
		SubjectLabel: e.rawTextOf(record),
		Details:      fmt.Sprintf("auto-matched to %s (score %.3f, method %s, tier %s)", entityID, best.Score, best.Method, tier),
		NewState:     string(tier),
	}
	return e.commit(ctx, decision, entry)
}

func (e *Engine) commitQueued(ctx context.Context, record domain.RawRecord, candidates []domain.MatchCandidate, note noteKind, detail string) (domain.MatchDecision, error) {
	if len(candidates) > e.policy.TopCandidates {
		candidates = candidates[:e.policy.TopCandidates]
	}
	now := time.Now().UTC()
	decision := domain.MatchDecision{
		ID:         uuid.New(),
		RecordID:   record.ID,
		EntityKind: e.kind,
		Tier:       domain.TierManualReview,
		Note:       note.format(detail),
		Candidates: candidates,
		DecidedBy:  domain.SystemActor,
		DecidedAt:  now,
	}
	entry := domain.AuditLogEntry{
		ID:           uuid.New(),
		Timestamp:    now,
		Actor:        domain.SystemActor,
		Action:       domain.ActionReject,
		SubjectKind:  domain.SubjectRecord,
		SubjectID:    record.ID,
		SubjectLabel: e.rawTextOf(record),
		Details:      decision.Note,
		NewState:     string(domain.TierManualReview),
	}
	return e.commit(ctx, decision, entry)
}

// commit persists a decision and its audit entry atomically. An audit write
// failure leaves the record undecided; one retry covers transient faults.
func (e *Engine) commit(ctx context.Context, decision domain.MatchDecision, entry domain.AuditLogEntry) (domain.MatchDecision, error) {
	committed, err := e.committer.Commit(ctx, decision, entry)
	if err != nil && errors.Is(err, domain.ErrAuditWriteFailure) {
		committed, err = e.committer.Commit(ctx, decision, entry)
	}
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to commit decision for record %s: %w", decision.RecordID, err)
	}
	return committed, nil
}
