// Package review implements the manual review queue: records no automated
// pass could confidently resolve, waiting on a human verdict.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/entityloader"
	"github.com/admitgrid/reconcile/internal/normalize"
	"github.com/admitgrid/reconcile/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PendingItem is one queued record as shown to a reviewer: the decision,
// the originating raw record, and the closest misses from scoring.
type PendingItem struct {
	Decision   domain.MatchDecision    `json:"decision"`
	Record     domain.RawRecord        `json:"record"`
	Candidates []domain.MatchCandidate `json:"candidates"`
}

// Service exposes the review queue and accepts verdicts back into the
// decision store and the master registry.
type Service struct {
	decisions repository.MatchDecisionRepository
	committer repository.DecisionCommitter
	records   repository.RawRecordRepository
	registry  repository.MasterRegistry
	audit     repository.AuditLogRepository
	logger    zerolog.Logger
}

// NewService wires the review queue service.
func NewService(
	decisions repository.MatchDecisionRepository,
	committer repository.DecisionCommitter,
	records repository.RawRecordRepository,
	registry repository.MasterRegistry,
	audit repository.AuditLogRepository,
	logger zerolog.Logger,
) *Service {
	return &Service{
		decisions: decisions,
		committer: committer,
		records:   records,
		registry:  registry,
		audit:     audit,
		logger:    logger.With().Str("component", "review").Logger(),
	}
}

// Snapshot returns the pending queue with records and candidate entity names
// resolved. Candidate lookups go through the batching loader: one round trip
// however many queued decisions share candidates.
func (s *Service) Snapshot(ctx context.Context, limit, offset int) ([]PendingItem, error) {
	pending, err := s.decisions.ListPendingReview(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}
	if len(pending) == 0 {
		return []PendingItem{}, nil
	}

	recordIDs := make([]uuid.UUID, 0, len(pending))
	for _, decision := range pending {
		recordIDs = append(recordIDs, decision.RecordID)
	}
	records, err := s.records.GetByIDs(ctx, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued records: %w", err)
	}
	recordMap := make(map[uuid.UUID]domain.RawRecord, len(records))
	for _, record := range records {
		recordMap[record.ID] = record
	}

	loader := entityloader.NewEntityLoader(s.registry)
	candidateIDs := make([]uuid.UUID, 0, len(pending))
	for _, decision := range pending {
		for _, candidate := range decision.Candidates {
			candidateIDs = append(candidateIDs, candidate.EntityID)
		}
	}
	entities, err := loader.LoadAll(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve candidate entities: %w", err)
	}

	items := make([]PendingItem, 0, len(pending))
	for _, decision := range pending {
		item := PendingItem{
			Decision:   decision,
			Record:     recordMap[decision.RecordID],
			Candidates: decision.Candidates,
		}
		for i, candidate := range item.Candidates {
			if entity, ok := entities[candidate.EntityID]; ok {
				item.Candidates[i].EntityName = entity.PrimaryName
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Confirm records a human match: the decision gains the entity, and the
// record's normalized text is promoted to an alias so the same text
// auto-matches exactly on the next run.
func (s *Service) Confirm(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind, entityID uuid.UUID, actor string) (domain.MatchDecision, error) {
	previous, err := s.decisions.Current(ctx, recordID, kind)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to load current decision: %w", err)
	}

	entity, err := s.registry.GetByID(ctx, entityID)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to load entity %s: %w", entityID, err)
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to load record: %w", err)
	}

	now := time.Now().UTC()
	decision := domain.MatchDecision{
		ID:         uuid.New(),
		RecordID:   recordID,
		EntityKind: kind,
		EntityID:   &entityID,
		Tier:       domain.TierManualReview,
		Note:       "confirmed by reviewer",
		DecidedBy:  actor,
		DecidedAt:  now,
	}
	entry := domain.AuditLogEntry{
		ID:            uuid.New(),
		Timestamp:     now,
		Actor:         actor,
		Action:        domain.ActionManualMatch,
		SubjectKind:   domain.SubjectRecord,
		SubjectID:     recordID,
		SubjectLabel:  record.InstitutionText,
		Details:       fmt.Sprintf("manually matched to %s (%s)", entity.PrimaryName, entityID),
		PreviousState: string(previous.Tier),
		NewState:      string(domain.TierManualReview),
	}
	committed, err := s.committer.Commit(ctx, decision, entry)
	if err != nil {
		return domain.MatchDecision{}, err
	}

	// Promote the raw text so an identical record matches in pass 1 next
	// time. AddAlias is idempotent; a concurrent duplicate is harmless.
	alias := normalize.Name(normalize.StripPincode(rawTextFor(record, kind)))
	if alias != "" {
		if err := s.registry.AddAlias(ctx, entityID, alias); err != nil {
			return domain.MatchDecision{}, fmt.Errorf("failed to promote alias: %w", err)
		}
		aliasEntry := domain.AuditLogEntry{
			ID:           uuid.New(),
			Timestamp:    time.Now().UTC(),
			Actor:        actor,
			Action:       domain.ActionCreateAlias,
			SubjectKind:  domain.SubjectEntity,
			SubjectID:    entityID,
			SubjectLabel: entity.PrimaryName,
			Details:      fmt.Sprintf("alias %q learned from record %s", alias, recordID),
		}
		if _, err := s.audit.Append(ctx, aliasEntry); err != nil {
			return domain.MatchDecision{}, err
		}
	}

	s.logger.Info().
		Str("record", recordID.String()).
		Str("entity", entityID.String()).
		Str("actor", actor).
		Msg("manual match confirmed")
	return committed, nil
}

// Reject records a human rejection: the record keeps a null entity
// permanently unless it is resubmitted.
func (s *Service) Reject(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind, actor string) (domain.MatchDecision, error) {
	return s.reject(ctx, recordID, kind, actor, domain.ActionReject)
}

// BulkReject rejects a set of queued records in one sweep. Each record still
// gets its own decision and ledger entry; only the action differs.
func (s *Service) BulkReject(ctx context.Context, recordIDs []uuid.UUID, kind domain.EntityKind, actor string) ([]domain.MatchDecision, error) {
	decisions := make([]domain.MatchDecision, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		decision, err := s.reject(ctx, recordID, kind, actor, domain.ActionBulkReject)
		if err != nil {
			return decisions, fmt.Errorf("bulk reject stopped at record %s: %w", recordID, err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// BulkApprove re-affirms a set of medium-tier automatic decisions after
// audit sampling. The entity stays; the actor and action change.
func (s *Service) BulkApprove(ctx context.Context, recordIDs []uuid.UUID, kind domain.EntityKind, actor string) ([]domain.MatchDecision, error) {
	decisions := make([]domain.MatchDecision, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		previous, err := s.decisions.Current(ctx, recordID, kind)
		if err != nil {
			return decisions, fmt.Errorf("bulk approve stopped at record %s: %w", recordID, err)
		}
		if previous.Tier != domain.TierMedium {
			return decisions, fmt.Errorf("record %s is tier %s, only medium-tier decisions can be bulk-approved", recordID, previous.Tier)
		}

		now := time.Now().UTC()
		decision := domain.MatchDecision{
			ID:         uuid.New(),
			RecordID:   recordID,
			EntityKind: kind,
			EntityID:   previous.EntityID,
			Tier:       domain.TierHigh,
			Score:      previous.Score,
			Method:     previous.Method,
			Note:       "medium-tier match approved in audit sampling",
			DecidedBy:  actor,
			DecidedAt:  now,
		}
		entry := domain.AuditLogEntry{
			ID:            uuid.New(),
			Timestamp:     now,
			Actor:         actor,
			Action:        domain.ActionBulkApprove,
			SubjectKind:   domain.SubjectRecord,
			SubjectID:     recordID,
			SubjectLabel:  fmt.Sprintf("decision %s", previous.ID),
			Details:       "medium-tier automatic match verified by reviewer",
			PreviousState: string(previous.Tier),
			NewState:      string(domain.TierHigh),
		}
		committed, err := s.committer.Commit(ctx, decision, entry)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, committed)
	}
	return decisions, nil
}

func (s *Service) reject(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind, actor string, action domain.AuditAction) (domain.MatchDecision, error) {
	previous, err := s.decisions.Current(ctx, recordID, kind)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to load current decision: %w", err)
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to load record: %w", err)
	}

	now := time.Now().UTC()
	decision := domain.MatchDecision{
		ID:         uuid.New(),
		RecordID:   recordID,
		EntityKind: kind,
		Tier:       domain.TierLow,
		Note:       "rejected by reviewer",
		DecidedBy:  actor,
		DecidedAt:  now,
	}
	entry := domain.AuditLogEntry{
		ID:            uuid.New(),
		Timestamp:     now,
		Actor:         actor,
		Action:        action,
		SubjectKind:   domain.SubjectRecord,
		SubjectID:     recordID,
		SubjectLabel:  record.InstitutionText,
		Details:       "no master entity corresponds to this record",
		PreviousState: string(previous.Tier),
		NewState:      string(domain.TierLow),
	}
	committed, err := s.committer.Commit(ctx, decision, entry)
	if err != nil {
		return domain.MatchDecision{}, err
	}

	s.logger.Info().Str("record", recordID.String()).Str("actor", actor).Msg("manual match rejected")
	return committed, nil
}

func rawTextFor(record domain.RawRecord, kind domain.EntityKind) string {
	if kind == domain.EntityKindCourse {
		return record.CourseText
	}
	return record.InstitutionText
}
