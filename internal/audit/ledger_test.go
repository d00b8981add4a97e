package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubAuditRepo struct {
	appended  []domain.AuditLogEntry
	pruneN    int64
	appendErr error
}

func (s *stubAuditRepo) Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if s.appendErr != nil {
		return domain.AuditLogEntry{}, s.appendErr
	}
	s.appended = append(s.appended, entry)
	return entry, nil
}

func (s *stubAuditRepo) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	for _, e := range s.appended {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubAuditRepo) Stats(ctx context.Context) (domain.AuditStats, error) {
	stats := domain.AuditStats{
		Total:         int64(len(s.appended)),
		ByAction:      map[string]int64{},
		BySubjectKind: map[string]int64{},
		ByActor:       map[string]int64{},
	}
	for _, e := range s.appended {
		stats.ByAction[string(e.Action)]++
		stats.BySubjectKind[string(e.SubjectKind)]++
		stats.ByActor[e.Actor]++
	}
	return stats, nil
}

func (s *stubAuditRepo) CountForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range s.appended {
		if e.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (s *stubAuditRepo) Prune(ctx context.Context, keepNewest int64) (int64, error) {
	return s.pruneN, nil
}

func TestLedgerLogAndQuery(t *testing.T) {
	repo := &stubAuditRepo{}
	ledger := NewLedger(repo, zerolog.Nop())

	subject := uuid.New()
	entry := NewEntry("reviewer-1", domain.ActionManualMatch, domain.SubjectRecord, subject, "some record", "matched manually")
	if _, err := ledger.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	entries, err := ledger.Query(context.Background(), domain.AuditFilter{Actor: "reviewer-1"})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].SubjectID != subject {
		t.Fatalf("unexpected query result: %+v", entries)
	}
}

func TestLedgerHasEntriesFor(t *testing.T) {
	repo := &stubAuditRepo{}
	ledger := NewLedger(repo, zerolog.Nop())

	subject := uuid.New()
	entry := NewEntry(domain.SystemActor, domain.ActionApprove, domain.SubjectRecord, subject, "record", "auto-matched")
	if _, err := ledger.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	ok, err := ledger.HasEntriesFor(context.Background(), subject)
	if err != nil || !ok {
		t.Fatalf("HasEntriesFor = %v, %v; want true", ok, err)
	}
	ok, err = ledger.HasEntriesFor(context.Background(), uuid.New())
	if err != nil || ok {
		t.Fatalf("HasEntriesFor for unknown subject = %v, %v; want false", ok, err)
	}
}

func TestApplyRetentionRecordsItself(t *testing.T) {
	repo := &stubAuditRepo{pruneN: 42}
	ledger := NewLedger(repo, zerolog.Nop())

	pruned, err := ledger.ApplyRetention(context.Background(), 1000)
	if err != nil {
		t.Fatalf("ApplyRetention returned error: %v", err)
	}
	if pruned != 42 {
		t.Fatalf("pruned = %d, want 42", pruned)
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected the prune to log itself, got %d entries", len(repo.appended))
	}
	entry := repo.appended[0]
	if entry.Action != domain.ActionDelete || entry.SubjectKind != domain.SubjectLedger {
		t.Fatalf("prune entry = %+v", entry)
	}
	if entry.Actor != domain.SystemActor {
		t.Fatalf("prune actor = %q, want system", entry.Actor)
	}
}

func TestApplyRetentionNoopWhenNothingPruned(t *testing.T) {
	repo := &stubAuditRepo{pruneN: 0}
	ledger := NewLedger(repo, zerolog.Nop())

	pruned, err := ledger.ApplyRetention(context.Background(), 1000)
	if err != nil || pruned != 0 {
		t.Fatalf("ApplyRetention = %d, %v; want 0, nil", pruned, err)
	}
	if len(repo.appended) != 0 {
		t.Fatalf("no-op prune must not log, got %d entries", len(repo.appended))
	}
}

func TestApplyRetentionSurfacesFailedSelfEntry(t *testing.T) {
	repo := &stubAuditRepo{pruneN: 7, appendErr: errors.New("disk full")}
	ledger := NewLedger(repo, zerolog.Nop())

	pruned, err := ledger.ApplyRetention(context.Background(), 1000)
	if err == nil {
		t.Fatalf("expected an error when the prune's own entry fails")
	}
	if pruned != 7 {
		t.Fatalf("pruned = %d, want 7 even on entry failure", pruned)
	}
}
