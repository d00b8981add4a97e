package repository

import (
	"context"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
)

// MasterRegistry is the read-mostly store of canonical entities. Reads are
// safe to share across matching workers; AddAlias is the single mutation path
// and must be idempotent because two workers can discover the same alias
// concurrently.
type MasterRegistry interface {
	Create(ctx context.Context, entity domain.MasterEntity) (domain.MasterEntity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.MasterEntity, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.MasterEntity, error)
	LookupByExactName(ctx context.Context, kind domain.EntityKind, normalizedName string) (uuid.UUID, bool, error)
	LookupByAlias(ctx context.Context, kind domain.EntityKind, normalizedAlias string) (uuid.UUID, bool, error)
	CandidatesByScope(ctx context.Context, kind domain.EntityKind, scope domain.ScopeHints) ([]domain.MasterEntity, error)
	AddAlias(ctx context.Context, entityID uuid.UUID, normalizedAlias string) error
}

// RawRecordRepository persists ingested admission rows. Records are immutable
// once stored.
type RawRecordRepository interface {
	CreateBatch(ctx context.Context, records []domain.RawRecord) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.RawRecord, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.RawRecord, error)
	ListUndecided(ctx context.Context, kind domain.EntityKind, limit int) ([]domain.RawRecord, error)
}

// MatchDecisionRepository reads the durable match outcomes. Exactly one
// current decision exists per (record, entity kind); superseded rows remain
// for history.
type MatchDecisionRepository interface {
	Current(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind) (domain.MatchDecision, error)
	ListByTier(ctx context.Context, tier domain.ConfidenceTier, limit, offset int) ([]domain.MatchDecision, error)
	ListPendingReview(ctx context.Context, limit, offset int) ([]domain.MatchDecision, error)
	CountByTier(ctx context.Context) (map[domain.ConfidenceTier]int64, error)
}

// DecisionCommitter makes a decision durable together with its audit entry.
// A decision without a ledger entry must never be observable, so
// implementations commit both writes or neither.
type DecisionCommitter interface {
	Commit(ctx context.Context, decision domain.MatchDecision, entry domain.AuditLogEntry) (domain.MatchDecision, error)
}

// AuditLogRepository is the append-only ledger. Appends are atomic and
// ordered; entries are never updated, and deleted only by the retention
// prune.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error)
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error)
	Stats(ctx context.Context) (domain.AuditStats, error)
	CountForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error)
	Prune(ctx context.Context, keepNewest int64) (int64, error)
}
