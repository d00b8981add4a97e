package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rawRecordRepository struct {
	pool *pgxpool.Pool
}

// NewRawRecordRepository wires the raw record store backed by pgxpool.
func NewRawRecordRepository(pool *pgxpool.Pool) RawRecordRepository {
	return &rawRecordRepository{pool: pool}
}

const rawRecordColumns = `id, institution_text, course_text, state_text, category_text, year, round, rank, source_file_id`

func (r *rawRecordRepository) CreateBatch(ctx context.Context, records []domain.RawRecord) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("raw record repository not initialized")
	}
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, []any{
			record.ID,
			record.InstitutionText,
			record.CourseText,
			record.StateText,
			record.CategoryText,
			record.Year,
			record.Round,
			record.Rank,
			record.SourceFileID,
		})
	}

	copied, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"raw_records"},
		[]string{"id", "institution_text", "course_text", "state_text", "category_text", "year", "round", "rank", "source_file_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw records: %w", err)
	}
	return int(copied), nil
}

func (r *rawRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RawRecord, error) {
	if r.pool == nil {
		return domain.RawRecord{}, fmt.Errorf("raw record repository not initialized")
	}

	var record domain.RawRecord
	err := r.pool.QueryRow(
		ctx,
		`SELECT `+rawRecordColumns+` FROM raw_records WHERE id = $1`,
		id,
	).Scan(
		&record.ID,
		&record.InstitutionText,
		&record.CourseText,
		&record.StateText,
		&record.CategoryText,
		&record.Year,
		&record.Round,
		&record.Rank,
		&record.SourceFileID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RawRecord{}, domain.ErrNotFound
		}
		return domain.RawRecord{}, fmt.Errorf("failed to get raw record: %w", err)
	}
	return record, nil
}

func (r *rawRecordRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.RawRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("raw record repository not initialized")
	}
	if len(ids) == 0 {
		return []domain.RawRecord{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+rawRecordColumns+` FROM raw_records WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw records: %w", err)
	}
	defer rows.Close()

	return collectRawRecords(rows)
}

func (r *rawRecordRepository) ListUndecided(ctx context.Context, kind domain.EntityKind, limit int) ([]domain.RawRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("raw record repository not initialized")
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+rawRecordColumns+` FROM raw_records rr
		 WHERE NOT EXISTS (
		   SELECT 1 FROM match_decisions md
		   WHERE md.record_id = rr.id AND md.entity_kind = $1 AND md.current
		 )
		 ORDER BY rr.created_at
		 LIMIT $2`,
		string(kind),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list undecided records: %w", err)
	}
	defer rows.Close()

	return collectRawRecords(rows)
}

func collectRawRecords(rows pgx.Rows) ([]domain.RawRecord, error) {
	records := []domain.RawRecord{}
	for rows.Next() {
		var record domain.RawRecord
		if err := rows.Scan(
			&record.ID,
			&record.InstitutionText,
			&record.CourseText,
			&record.StateText,
			&record.CategoryText,
			&record.Year,
			&record.Round,
			&record.Rank,
			&record.SourceFileID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw records: %w", err)
	}
	return records, nil
}
