package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository wires the append-only ledger backed by pgxpool. The
// seq column gives entries their total order; it never leaves this package.
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

func (r *auditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if r.pool == nil {
		return domain.AuditLogEntry{}, fmt.Errorf("audit log repository not initialized")
	}

	_, err := r.pool.Exec(
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
	)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("%w: %v", domain.ErrAuditWriteFailure, err)
	}
	return entry, nil
}

func (r *auditLogRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("audit log repository not initialized")
	}

	var (
		clauses []string
		args    []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Actor != "" {
		clauses = append(clauses, "actor = "+arg(filter.Actor))
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = "+arg(string(filter.Action)))
	}
	if filter.SubjectKind != "" {
		clauses = append(clauses, "subject_kind = "+arg(string(filter.SubjectKind)))
	}
	if filter.SubjectID != nil {
		clauses = append(clauses, "subject_id = "+arg(*filter.SubjectID))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		clauses = append(clauses, "(subject_label ILIKE "+arg(pattern)+" OR details ILIKE "+arg(pattern)+")")
	}
	if filter.From != nil {
		clauses = append(clauses, "ts >= "+arg(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "ts <= "+arg(*filter.To))
	}

	query := `SELECT id, ts, actor, action, subject_kind, subject_id, subject_label, details, previous_state, new_state FROM audit_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditLogEntry{}
	for rows.Next() {
		var (
			entry  domain.AuditLogEntry
			action string
			kind   string
			ts     pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&ts,
			&entry.Actor,
			&action,
			&kind,
			&entry.SubjectID,
			&entry.SubjectLabel,
			&entry.Details,
			&entry.PreviousState,
			&entry.NewState,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", scanErr)
		}
		entry.Action = domain.AuditAction(action)
		entry.SubjectKind = domain.AuditSubjectKind(kind)
		if ts.Valid {
			entry.Timestamp = ts.Time
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", rowsErr)
	}
	return entries, nil
}

func (r *auditLogRepository) Stats(ctx context.Context) (domain.AuditStats, error) {
	if r.pool == nil {
		return domain.AuditStats{}, fmt.Errorf("audit log repository not initialized")
	}

	stats := domain.AuditStats{
		ByAction:      map[string]int64{},
		BySubjectKind: map[string]int64{},
		ByActor:       map[string]int64{},
	}

	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log`).Scan(&stats.Total); err != nil {
		return domain.AuditStats{}, fmt.Errorf("failed to count audit entries: %w", err)
	}

	type grouping struct {
		query  string
		target map[string]int64
	}
	groupings := []grouping{
		{`SELECT action, count(*) FROM audit_log GROUP BY action`, stats.ByAction},
		{`SELECT subject_kind, count(*) FROM audit_log GROUP BY subject_kind`, stats.BySubjectKind},
		{`SELECT actor, count(*) FROM audit_log GROUP BY actor`, stats.ByActor},
	}
	for _, g := range groupings {
		rows, err := r.pool.Query(ctx, g.query)
		if err != nil {
			return domain.AuditStats{}, fmt.Errorf("failed to aggregate audit log: %w", err)
		}
		for rows.Next() {
			var (
				key   string
				count int64
			)
			if scanErr := rows.Scan(&key, &count); scanErr != nil {
				rows.Close()
				return domain.AuditStats{}, fmt.Errorf("failed to scan audit aggregate: %w", scanErr)
			}
			g.target[key] = count
		}
		rowsErr := rows.Err()
		rows.Close()
		if rowsErr != nil {
			return domain.AuditStats{}, fmt.Errorf("failed to iterate audit aggregates: %w", rowsErr)
		}
	}
	return stats, nil
}

func (r *auditLogRepository) CountForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("audit log repository not initialized")
	}

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE subject_id = $1`, subjectID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries for subject: %w", err)
	}
	return count, nil
}

func (r *auditLogRepository) Prune(ctx context.Context, keepNewest int64) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("audit log repository not initialized")
	}
	if keepNewest <= 0 {
		return 0, fmt.Errorf("keepNewest must be positive")
	}

	tag, err := r.pool.Exec(
		ctx,
		`DELETE FROM audit_log
		 WHERE seq < (
		   SELECT coalesce(min(seq), 0) FROM (
		     SELECT seq FROM audit_log ORDER BY seq DESC LIMIT $1
		   ) newest
		 )`,
		keepNewest,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
