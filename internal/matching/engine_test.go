package matching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/normalize"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// stubRegistry serves canonical entities from memory. Lookup behavior can be
// forced to fail to exercise the retry path.
type stubRegistry struct {
	mu       sync.Mutex
	entities []domain.MasterEntity
	failures int // remaining lookups that return ErrRegistryUnavailable
	calls    int
}

func (s *stubRegistry) Create(ctx context.Context, entity domain.MasterEntity) (domain.MasterEntity, error) {
	s.entities = append(s.entities, entity)
	return entity, nil
}

func (s *stubRegistry) GetByID(ctx context.Context, id uuid.UUID) (domain.MasterEntity, error) {
	for _, e := range s.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.MasterEntity{}, domain.ErrNotFound
}

func (s *stubRegistry) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.MasterEntity, error) {
	var out []domain.MasterEntity
	for _, id := range ids {
		if e, err := s.GetByID(ctx, id); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRegistry) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("%w: connection refused", domain.ErrRegistryUnavailable)
	}
	return nil
}

func (s *stubRegistry) LookupByExactName(ctx context.Context, kind domain.EntityKind, normalizedName string) (uuid.UUID, bool, error) {
	if err := s.fail(); err != nil {
		return uuid.Nil, false, err
	}
	for _, e := range s.entities {
		if e.Kind != kind {
			continue
		}
		if normalize.Name(e.PrimaryName) == normalizedName {
			return e.ID, true, nil
		}
		for _, alias := range e.Aliases {
			if normalize.Name(alias) == normalizedName {
				return e.ID, true, nil
			}
		}
	}
	return uuid.Nil, false, nil
}

func (s *stubRegistry) LookupByAlias(ctx context.Context, kind domain.EntityKind, normalizedAlias string) (uuid.UUID, bool, error) {
	return s.LookupByExactName(ctx, kind, normalizedAlias)
}

func (s *stubRegistry) CandidatesByScope(ctx context.Context, kind domain.EntityKind, scope domain.ScopeHints) ([]domain.MasterEntity, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []domain.MasterEntity
	for _, e := range s.entities {
		if e.Kind != kind {
			continue
		}
		if scope.State != "" && e.Scope.State != "" && e.Scope.State != scope.State {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubRegistry) AddAlias(ctx context.Context, entityID uuid.UUID, normalizedAlias string) error {
	for i, e := range s.entities {
		if e.ID == entityID {
			s.entities[i].Aliases = append(e.Aliases, normalizedAlias)
			return nil
		}
	}
	return domain.ErrNotFound
}

// stubCommitter records committed pairs and can fail the audit write a set
// number of times.
type stubCommitter struct {
	mu            sync.Mutex
	decisions     []domain.MatchDecision
	entries       []domain.AuditLogEntry
	auditFailures int
}

func (s *stubCommitter) Commit(ctx context.Context, decision domain.MatchDecision, entry domain.AuditLogEntry) (domain.MatchDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFailures > 0 {
		s.auditFailures--
		return domain.MatchDecision{}, fmt.Errorf("%w: disk full", domain.ErrAuditWriteFailure)
	}
	s.decisions = append(s.decisions, decision)
	s.entries = append(s.entries, entry)
	return decision, nil
}

func testPolicy() Policy {
	policy := DefaultPolicy()
	policy.Workers = 2
	policy.RegistryBackoff = time.Millisecond
	return policy
}

func newTestEngine(registry *stubRegistry, committer *stubCommitter, policy Policy) *Engine {
	return NewEngine(domain.EntityKindCollege, registry, committer, normalize.NewExpander(nil), policy, zerolog.Nop())
}

func collegeRecord(institution, state string) domain.RawRecord {
	return domain.NewRawRecord(institution, "MBBS", state, "GENERAL", 2024, 1, 1200, "file-1")
}

func collegeEntity(primary, state string, aliases ...string) domain.MasterEntity {
	entity := domain.NewMasterEntity(domain.EntityKindCollege, primary, domain.ScopeHints{State: state})
	entity.Aliases = aliases
	return entity
}

func TestRunBatchExactMatch(t *testing.T) {
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA"),
	}}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("Government Medical College, Kottayam", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Decided) != 1 || len(result.Queued) != 0 {
		t.Fatalf("unexpected result: decided=%d queued=%d", len(result.Decided), len(result.Queued))
	}
	decision := result.Decided[0]
	if decision.Tier != domain.TierExact || decision.Score != 1.0 {
		t.Fatalf("decision = %+v, want exact tier with score 1.0", decision)
	}
	if decision.EntityID == nil || *decision.EntityID != registry.entities[0].ID {
		t.Fatalf("decision entity = %v, want %s", decision.EntityID, registry.entities[0].ID)
	}
	if decision.DecidedBy != domain.SystemActor {
		t.Fatalf("decided by = %q, want system", decision.DecidedBy)
	}
	if result.Stats.Pass1Exact != 1 {
		t.Fatalf("stats = %+v, want one pass-1 exact", result.Stats)
	}
	if len(committer.entries) != 1 || committer.entries[0].Action != domain.ActionApprove {
		t.Fatalf("expected one approve audit entry, got %+v", committer.entries)
	}
}

func TestRunBatchExactMatchViaLearnedAlias(t *testing.T) {
	// A reviewer confirmation promotes the record's normalized text to an
	// alias; the next run with the same raw text must resolve in pass 1.
	entity := collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA")
	registry := &stubRegistry{entities: []domain.MasterEntity{entity}}
	if err := registry.AddAlias(context.Background(), entity.ID, "GOVT MEDICAL COLLEGE KOTTAYAM"); err != nil {
		t.Fatalf("AddAlias returned error: %v", err)
	}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("Govt. Medical College, Kottayam 686008", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Decided) != 1 || len(result.Queued) != 0 {
		t.Fatalf("unexpected result: decided=%d queued=%d", len(result.Decided), len(result.Queued))
	}
	decision := result.Decided[0]
	if decision.Tier != domain.TierExact || decision.Score != 1.0 || decision.Method != domain.MethodExact {
		t.Fatalf("decision = %+v, want exact tier at 1.0 via the alias", decision)
	}
	if decision.EntityID == nil || *decision.EntityID != entity.ID {
		t.Fatalf("decision entity = %v, want %s", decision.EntityID, entity.ID)
	}
	if result.Stats.Pass1Exact != 1 {
		t.Fatalf("stats = %+v, want one pass-1 exact", result.Stats)
	}
}

func TestCourseEngineAuditLabelUsesCourseText(t *testing.T) {
	course := domain.NewMasterEntity(domain.EntityKindCourse, "MD GENERAL MEDICINE", domain.ScopeHints{})
	registry := &stubRegistry{entities: []domain.MasterEntity{course}}
	committer := &stubCommitter{}
	engine := NewEngine(domain.EntityKindCourse, registry, committer, normalize.NewExpander(nil), testPolicy(), zerolog.Nop())

	record := domain.NewRawRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "MD General Medicine", "Kerala", "GENERAL", 2024, 1, 1200, "file-1")
	result, err := engine.RunBatch(context.Background(), []domain.RawRecord{record})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Decided) != 1 || result.Decided[0].Tier != domain.TierExact {
		t.Fatalf("expected an exact course match, got %+v", result)
	}
	if len(committer.entries) != 1 || committer.entries[0].SubjectLabel != record.CourseText {
		t.Fatalf("audit label = %+v, want the course text %q", committer.entries, record.CourseText)
	}
}

func TestRunBatchAbbreviatedHighConfidence(t *testing.T) {
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("GOVERNMENT MEDICAL COLLEGE TRIVANDRUM", "KERALA"),
	}}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("GOVT MED COLL TRIVANDRUM", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Decided) != 1 {
		t.Fatalf("expected one decided record, got %+v", result)
	}
	decision := result.Decided[0]
	if decision.Tier != domain.TierHigh {
		t.Fatalf("tier = %s, want high", decision.Tier)
	}
	if decision.Method != domain.MethodAbbreviationExpansion || decision.Score != 0.95 {
		t.Fatalf("decision = %+v, want abbreviation at 0.95", decision)
	}
	if result.Stats.Pass2High != 1 {
		t.Fatalf("stats = %+v, want one pass-2 high", result.Stats)
	}
}

func TestRunBatchQueuesWhenNoCandidates(t *testing.T) {
	registry := &stubRegistry{} // empty registry
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("SOME UNKNOWN COLLEGE", "")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Queued) != 1 || len(result.Decided) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	queued := result.Queued[0]
	if queued.Tier != domain.TierManualReview {
		t.Fatalf("tier = %s, want manual_review", queued.Tier)
	}
	if queued.EntityID != nil {
		t.Fatalf("queued decision must not carry an entity, got %v", queued.EntityID)
	}
	if !strings.HasPrefix(queued.Note, "no-candidates") {
		t.Fatalf("note = %q, want no-candidates prefix", queued.Note)
	}
	if result.Stats.Queued != 1 {
		t.Fatalf("stats = %+v, want one queued", result.Stats)
	}
}

func TestRunBatchAmbiguousTieGoesToReview(t *testing.T) {
	// Two registry entries with the same name and no scope hints: a perfect
	// tie the engine must not guess at.
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("CITY MEDICAL COLLEGE", ""),
		collegeEntity("CITY MEDICAL COLLEGE", ""),
	}}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	// No state on the record either, so pass 1 finds the first entry — make
	// the raw text differ slightly to skip the exact pass.
	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("CITY MEDICAL COLLEGES", "")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Queued) != 1 {
		t.Fatalf("expected one queued record, got %+v", result)
	}
	queued := result.Queued[0]
	if !strings.HasPrefix(queued.Note, "ambiguous") {
		t.Fatalf("note = %q, want ambiguous prefix", queued.Note)
	}
	if len(queued.Candidates) == 0 {
		t.Fatalf("queued decision should carry the tied candidates")
	}
	if result.Stats.Ambiguous != 1 {
		t.Fatalf("stats = %+v, want one ambiguous", result.Stats)
	}
}

func TestRunBatchScopeHintBreaksTie(t *testing.T) {
	kerala := collegeEntity("CITY MEDICAL COLLEGE", "KERALA")
	unscoped := collegeEntity("CITY MEDICAL COLLEGE", "")
	registry := &stubRegistry{entities: []domain.MasterEntity{unscoped, kerala}}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("CITY MEDICAL COLLEGES", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Decided) != 1 {
		t.Fatalf("expected the scope hint to resolve the tie, got %+v", result)
	}
	decision := result.Decided[0]
	if decision.EntityID == nil || *decision.EntityID != kerala.ID {
		t.Fatalf("picked entity %v, want the Kerala one %s", decision.EntityID, kerala.ID)
	}
}

func TestRunBatchValidationFailureQueues(t *testing.T) {
	registry := &stubRegistry{}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	bad := collegeRecord("", "Kerala") // empty institution text
	result, err := engine.RunBatch(context.Background(), []domain.RawRecord{bad})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Queued) != 1 {
		t.Fatalf("expected one queued record, got %+v", result)
	}
	if !strings.HasPrefix(result.Queued[0].Note, "validation") {
		t.Fatalf("note = %q, want validation prefix", result.Queued[0].Note)
	}
	if result.Stats.ValidationRejected != 1 {
		t.Fatalf("stats = %+v, want one validation rejection", result.Stats)
	}
	if registry.calls != 0 {
		t.Fatalf("invalid record must never reach the registry, saw %d lookups", registry.calls)
	}
}

func TestRunBatchRetriesRegistryThenQueues(t *testing.T) {
	registry := &stubRegistry{failures: 100} // never recovers
	committer := &stubCommitter{}
	policy := testPolicy()
	policy.RegistryRetries = 3
	engine := newTestEngine(registry, committer, policy)

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	if len(result.Queued) != 1 {
		t.Fatalf("expected one queued record, got %+v", result)
	}
	if !strings.HasPrefix(result.Queued[0].Note, "registry-unavailable") {
		t.Fatalf("note = %q, want registry-unavailable prefix", result.Queued[0].Note)
	}
	if registry.calls != policy.RegistryRetries {
		t.Fatalf("registry calls = %d, want %d", registry.calls, policy.RegistryRetries)
	}
	if result.Stats.RegistryUnavailable != 1 {
		t.Fatalf("stats = %+v, want one registry-unavailable", result.Stats)
	}
}

func TestRunBatchRegistryRecoversWithinRetries(t *testing.T) {
	registry := &stubRegistry{
		failures: 1,
		entities: []domain.MasterEntity{collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA")},
	}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if len(result.Decided) != 1 || result.Decided[0].Tier != domain.TierExact {
		t.Fatalf("expected recovery to an exact match, got %+v", result)
	}
}

func TestCommitRetriesOnceOnAuditFailure(t *testing.T) {
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA"),
	}}
	committer := &stubCommitter{auditFailures: 1}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if len(result.Decided) != 1 {
		t.Fatalf("expected the retried commit to succeed, got %+v", result)
	}
	if len(committer.decisions) != 1 {
		t.Fatalf("expected exactly one committed decision, got %d", len(committer.decisions))
	}
}

func TestCommitGivesUpAfterSecondAuditFailure(t *testing.T) {
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA"),
	}}
	committer := &stubCommitter{auditFailures: 2}
	engine := newTestEngine(registry, committer, testPolicy())

	result, err := engine.RunBatch(context.Background(),
		[]domain.RawRecord{collegeRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "Kerala")})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if result.Stats.Failed != 1 {
		t.Fatalf("stats = %+v, want one failure", result.Stats)
	}
	if len(committer.decisions) != 0 {
		t.Fatalf("no decision may be observable after a failed audit write, got %d", len(committer.decisions))
	}
}

func TestRunBatchCancelledContext(t *testing.T) {
	registry := &stubRegistry{}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []domain.RawRecord{
		collegeRecord("COLLEGE ONE", ""),
		collegeRecord("COLLEGE TWO", ""),
	}
	_, err := engine.RunBatch(ctx, records)
	if err == nil {
		t.Fatalf("expected a cancellation error")
	}
	if len(committer.decisions) != 0 {
		t.Fatalf("cancelled batch must not start new evaluations, got %d commits", len(committer.decisions))
	}
}

func TestRunBatchMixedOutcomeAccounting(t *testing.T) {
	registry := &stubRegistry{entities: []domain.MasterEntity{
		collegeEntity("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "KERALA"),
	}}
	committer := &stubCommitter{}
	engine := newTestEngine(registry, committer, testPolicy())

	records := []domain.RawRecord{
		collegeRecord("GOVERNMENT MEDICAL COLLEGE KOTTAYAM", "Kerala"), // exact
		collegeRecord("GOVT MED COLL KOTTAYAM", "Kerala"),              // abbreviation, high
		collegeRecord("TOTALLY UNRELATED ACADEMY", ""),                 // queued
		collegeRecord("", "Kerala"),                                    // validation
	}
	result, err := engine.RunBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}

	stats := result.Stats
	if stats.Total != 4 {
		t.Fatalf("total = %d, want 4", stats.Total)
	}
	decidedAndQueued := len(result.Decided) + len(result.Queued)
	if decidedAndQueued != 4 {
		t.Fatalf("every record needs an outcome, got %d", decidedAndQueued)
	}
	if stats.Pass1Exact != 1 || stats.Pass2High != 1 || stats.Queued != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	// One audit entry per decision, always.
	if len(committer.entries) != len(committer.decisions) {
		t.Fatalf("entries %d != decisions %d", len(committer.entries), len(committer.decisions))
	}
}
