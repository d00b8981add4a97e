// Package audit provides the append-only ledger of match decisions and
// registry mutations. The ledger is the sole source of truth for what
// happened and why; entries are never edited, and removed only by the
// retention prune.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger is the service wrapper over the audit store.
type Ledger struct {
	repo   repository.AuditLogRepository
	logger zerolog.Logger
}

// NewLedger wires the ledger service.
func NewLedger(repo repository.AuditLogRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// NewEntry builds a ready-to-append entry with a fresh id and timestamp.
func NewEntry(actor string, action domain.AuditAction, subjectKind domain.AuditSubjectKind, subjectID uuid.UUID, subjectLabel, details string) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		SubjectKind:  subjectKind,
		SubjectID:    subjectID,
		SubjectLabel: subjectLabel,
		Details:      details,
	}
}

// Log appends one entry. Each entry is self-contained; concurrent appends
// from parallel matching workers interleave freely without corrupting one
// another.
func (l *Ledger) Log(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	appended, err := l.repo.Append(ctx, entry)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	l.logger.Debug().
		Str("action", string(entry.Action)).
		Str("actor", entry.Actor).
		Str("subject", entry.SubjectID.String()).
		Msg("audit entry appended")
	return appended, nil
}

// Query returns entries matching the filter, newest first.
func (l *Ledger) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	return l.repo.Query(ctx, filter)
}

// Stats returns aggregate counts per action, subject kind, and actor.
func (l *Ledger) Stats(ctx context.Context) (domain.AuditStats, error) {
	return l.repo.Stats(ctx)
}

// HasEntriesFor reports whether the ledger holds at least one entry about a
// subject. Used by audit-completeness checks.
func (l *Ledger) HasEntriesFor(ctx context.Context, subjectID uuid.UUID) (bool, error) {
	count, err := l.repo.CountForSubject(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ApplyRetention prunes the oldest entries beyond keepNewest. Pruned entries
// are not archived; the prune records itself as a single delete-action entry
// so the removal is visible in the ledger that remains.
func (l *Ledger) ApplyRetention(ctx context.Context, keepNewest int64) (int64, error) {
	pruned, err := l.repo.Prune(ctx, keepNewest)
	if err != nil {
		return 0, err
	}
	if pruned == 0 {
		return 0, nil
	}

	entry := NewEntry(domain.SystemActor, domain.ActionDelete, domain.SubjectLedger,
		uuid.Nil, "audit retention",
		fmt.Sprintf("pruned %d entries beyond newest %d", pruned, keepNewest))
	if _, err := l.repo.Append(ctx, entry); err != nil {
		return pruned, fmt.Errorf("retention prune succeeded but its ledger entry failed: %w", err)
	}

	l.logger.Info().Int64("pruned", pruned).Int64("kept", keepNewest).Msg("audit retention applied")
	return pruned, nil
}
