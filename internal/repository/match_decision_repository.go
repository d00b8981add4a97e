package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/admitgrid/reconcile/internal/db"
	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type matchDecisionRepository struct {
	conn *db.Connection
}

// NewMatchDecisionRepository wires the decision store. It needs the
// connection wrapper, not just the pool, because committing a decision and
// its audit entry is a single transaction.
func NewMatchDecisionRepository(conn *db.Connection) interface {
	MatchDecisionRepository
	DecisionCommitter
} {
	return &matchDecisionRepository{conn: conn}
}

const matchDecisionColumns = `id, record_id, entity_kind, entity_id, tier, score, method, note, candidates, decided_by, decided_at, supersedes_id`

// Commit supersedes any current decision for the (record, kind) pair, writes
// the new decision, and appends its audit entry — atomically. If the ledger
// write fails everything rolls back and the record stays undecided.
func (r *matchDecisionRepository) Commit(ctx context.Context, decision domain.MatchDecision, entry domain.AuditLogEntry) (domain.MatchDecision, error) {
	if r.conn == nil {
		return domain.MatchDecision{}, fmt.Errorf("match decision repository not initialized")
	}
	if err := decision.Validate(); err != nil {
		return domain.MatchDecision{}, err
	}

	candidates, err := json.Marshal(decision.Candidates)
	if err != nil {
		return domain.MatchDecision{}, fmt.Errorf("failed to encode candidates: %w", err)
	}

	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var supersedes pgtype.UUID
		scanErr := tx.QueryRow(
			ctx,
			`UPDATE match_decisions SET current = false
			 WHERE record_id = $1 AND entity_kind = $2 AND current
			 RETURNING id`,
			decision.RecordID,
			string(decision.EntityKind),
		).Scan(&supersedes)
		if scanErr != nil && !errors.Is(scanErr, pgx.ErrNoRows) {
			return fmt.Errorf("failed to supersede decision: %w", scanErr)
		}
		if supersedes.Valid {
			id := uuid.UUID(supersedes.Bytes)
			decision.SupersedesID = &id
		}

		if _, execErr := tx.Exec(
			ctx,
			`INSERT INTO match_decisions (id, record_id, entity_kind, entity_id, tier, score, method, note, candidates, decided_by, decided_at, supersedes_id, current)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true)`,
			decision.ID,
			decision.RecordID,
			string(decision.EntityKind),
			decision.EntityID,
			string(decision.Tier),
			decision.Score,
			string(decision.Method),
			decision.Note,
			candidates,
			decision.DecidedBy,
			decision.DecidedAt,
			decision.SupersedesID,
		); execErr != nil {
			return fmt.Errorf("failed to insert decision: %w", execErr)
		}

		if _, execErr := tx.Exec(
			ctx,
			`INSERT INTO audit_log (id, ts, actor, action, subject_kind, subject_id, subject_label, details, previous_state, new_state)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			entry.ID,
			entry.Timestamp,
			entry.Actor,
			string(entry.Action),
			string(entry.SubjectKind),
			entry.SubjectID,
			entry.SubjectLabel,
			entry.Details,
			entry.PreviousState,
			entry.NewState,
		); execErr != nil {
			return fmt.Errorf("%w: %v", domain.ErrAuditWriteFailure, execErr)
		}
		return nil
	})
	if err != nil {
		return domain.MatchDecision{}, err
	}
	return decision, nil
}

func (r *matchDecisionRepository) Current(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind) (domain.MatchDecision, error) {
	if r.conn == nil {
		return domain.MatchDecision{}, fmt.Errorf("match decision repository not initialized")
	}

	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT `+matchDecisionColumns+` FROM match_decisions
		 WHERE record_id = $1 AND entity_kind = $2 AND current`,
		recordID,
		string(kind),
	)
	decision, err := scanMatchDecision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MatchDecision{}, domain.ErrNotFound
		}
		return domain.MatchDecision{}, fmt.Errorf("failed to get current decision: %w", err)
	}
	return decision, nil
}

func (r *matchDecisionRepository) ListByTier(ctx context.Context, tier domain.ConfidenceTier, limit, offset int) ([]domain.MatchDecision, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("match decision repository not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT `+matchDecisionColumns+` FROM match_decisions
		 WHERE tier = $1 AND current
		 ORDER BY decided_at
		 LIMIT $2 OFFSET $3`,
		string(tier),
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	decisions := []domain.MatchDecision{}
	for rows.Next() {
		decision, scanErr := scanMatchDecision(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", scanErr)
		}
		decisions = append(decisions, decision)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", rowsErr)
	}
	return decisions, nil
}

// ListPendingReview returns queued decisions still waiting on a human:
// manual-review tier, no entity yet, and not already answered by a reviewer.
func (r *matchDecisionRepository) ListPendingReview(ctx context.Context, limit, offset int) ([]domain.MatchDecision, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("match decision repository not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT `+matchDecisionColumns+` FROM match_decisions
		 WHERE tier = $1 AND current AND entity_id IS NULL AND decided_by = $2
		 ORDER BY decided_at
		 LIMIT $3 OFFSET $4`,
		string(domain.TierManualReview),
		domain.SystemActor,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending review decisions: %w", err)
	}
	defer rows.Close()

	decisions := []domain.MatchDecision{}
	for rows.Next() {
		decision, scanErr := scanMatchDecision(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", scanErr)
		}
		decisions = append(decisions, decision)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate pending review decisions: %w", rowsErr)
	}
	return decisions, nil
}

func (r *matchDecisionRepository) CountByTier(ctx context.Context) (map[domain.ConfidenceTier]int64, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("match decision repository not initialized")
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT tier, count(*) FROM match_decisions WHERE current GROUP BY tier`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	counts := map[domain.ConfidenceTier]int64{}
	for rows.Next() {
		var (
			tier  string
			count int64
		)
		if scanErr := rows.Scan(&tier, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", scanErr)
		}
		counts[domain.ConfidenceTier(tier)] = count
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate decision counts: %w", rowsErr)
	}
	return counts, nil
}

func scanMatchDecision(row pgx.Row) (domain.MatchDecision, error) {
	var (
		decision   domain.MatchDecision
		kind       string
		tier       string
		method     pgtype.Text
		candidates []byte
		decidedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&decision.ID,
		&decision.RecordID,
		&kind,
		&decision.EntityID,
		&tier,
		&decision.Score,
		&method,
		&decision.Note,
		&candidates,
		&decision.DecidedBy,
		&decidedAt,
		&decision.SupersedesID,
	); err != nil {
		return domain.MatchDecision{}, err
	}
	decision.EntityKind = domain.EntityKind(kind)
	decision.Tier = domain.ConfidenceTier(tier)
	if method.Valid {
		decision.Method = domain.MatchMethod(method.String)
	}
	if decidedAt.Valid {
		decision.DecidedAt = decidedAt.Time
	}
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &decision.Candidates); err != nil {
			return domain.MatchDecision{}, fmt.Errorf("failed to decode candidates: %w", err)
		}
	}
	return decision, nil
}
