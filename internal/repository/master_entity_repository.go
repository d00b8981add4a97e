package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/normalize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type masterEntityRepository struct {
	pool *pgxpool.Pool
}

// NewMasterEntityRepository wires the master registry backed by pgxpool.
// Names and aliases are stored pre-normalized; callers pass canonical text.
func NewMasterEntityRepository(pool *pgxpool.Pool) MasterRegistry {
	return &masterEntityRepository{pool: pool}
}

const masterEntityColumns = `id, kind, primary_name, normalized_name, aliases, abbreviations, scope_state, scope_stream, created_at, updated_at`

func (r *masterEntityRepository) Create(ctx context.Context, entity domain.MasterEntity) (domain.MasterEntity, error) {
	if r.pool == nil {
		return domain.MasterEntity{}, fmt.Errorf("master entity repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO master_entities (id, kind, primary_name, normalized_name, aliases, abbreviations, scope_state, scope_stream, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entity.ID,
		string(entity.Kind),
		entity.PrimaryName,
		normalizedNameOf(entity),
		entity.Aliases,
		entity.Abbreviations,
		entity.Scope.State,
		entity.Scope.Stream,
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		return domain.MasterEntity{}, fmt.Errorf("failed to create master entity: %w", err)
	}

	return entity, nil
}

func (r *masterEntityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.MasterEntity, error) {
	if r.pool == nil {
		return domain.MasterEntity{}, fmt.Errorf("master entity repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+masterEntityColumns+` FROM master_entities WHERE id = $1`,
		id,
	)

	entity, err := scanMasterEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MasterEntity{}, domain.ErrNotFound
		}
		return domain.MasterEntity{}, fmt.Errorf("failed to get master entity: %w", err)
	}
	return entity, nil
}

func (r *masterEntityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.MasterEntity, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("master entity repository not initialized")
	}
	if len(ids) == 0 {
		return []domain.MasterEntity{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+masterEntityColumns+` FROM master_entities WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get master entities: %w", err)
	}
	defer rows.Close()

	return collectMasterEntities(rows)
}

func (r *masterEntityRepository) LookupByExactName(ctx context.Context, kind domain.EntityKind, normalizedName string) (uuid.UUID, bool, error) {
	if r.pool == nil {
		return uuid.Nil, false, fmt.Errorf("master entity repository not initialized")
	}

	var id uuid.UUID
	err := r.pool.QueryRow(
		ctx,
		`SELECT id FROM master_entities
		 WHERE kind = $1 AND (normalized_name = $2 OR $2 = ANY(aliases))
		 LIMIT 1`,
		string(kind),
		normalizedName,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("%w: exact lookup: %v", domain.ErrRegistryUnavailable, err)
	}
	return id, true, nil
}

func (r *masterEntityRepository) LookupByAlias(ctx context.Context, kind domain.EntityKind, normalizedAlias string) (uuid.UUID, bool, error) {
	if r.pool == nil {
		return uuid.Nil, false, fmt.Errorf("master entity repository not initialized")
	}

	var id uuid.UUID
	err := r.pool.QueryRow(
		ctx,
		`SELECT id FROM master_entities
		 WHERE kind = $1 AND ($2 = ANY(aliases) OR $2 = ANY(abbreviations))
		 LIMIT 1`,
		string(kind),
		normalizedAlias,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("%w: alias lookup: %v", domain.ErrRegistryUnavailable, err)
	}
	return id, true, nil
}

func (r *masterEntityRepository) CandidatesByScope(ctx context.Context, kind domain.EntityKind, scope domain.ScopeHints) ([]domain.MasterEntity, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("master entity repository not initialized")
	}

	// An empty scope widens the search to every entity of the kind; a stated
	// state bounds the fuzzy comparison set.
	query := `SELECT ` + masterEntityColumns + ` FROM master_entities WHERE kind = $1`
	args := []any{string(kind)}
	if scope.State != "" {
		query += ` AND (scope_state = $2 OR scope_state = '')`
		args = append(args, scope.State)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate scan: %v", domain.ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	return collectMasterEntities(rows)
}

func (r *masterEntityRepository) AddAlias(ctx context.Context, entityID uuid.UUID, normalizedAlias string) error {
	if r.pool == nil {
		return fmt.Errorf("master entity repository not initialized")
	}
	if normalizedAlias == "" {
		return fmt.Errorf("alias must not be empty")
	}

	// Idempotent by construction: the guard predicate makes a duplicate
	// append a no-op, so concurrent workers discovering the same alias are
	// both safe.
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE master_entities
		 SET aliases = array_append(aliases, $2), updated_at = now()
		 WHERE id = $1 AND NOT ($2 = ANY(aliases))`,
		entityID,
		normalizedAlias,
	)
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the alias already exists (fine) or the entity is missing.
		var exists bool
		if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM master_entities WHERE id = $1)`, entityID).Scan(&exists); checkErr != nil {
			return fmt.Errorf("failed to verify entity after alias no-op: %w", checkErr)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func normalizedNameOf(entity domain.MasterEntity) string {
	return normalize.Name(entity.PrimaryName)
}

func scanMasterEntity(row pgx.Row) (domain.MasterEntity, error) {
	var (
		entity    domain.MasterEntity
		kind      string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	// normalized_name is a lookup column, not part of the domain shape.
	var normalizedName string
	if err := row.Scan(
		&entity.ID,
		&kind,
		&entity.PrimaryName,
		&normalizedName,
		&entity.Aliases,
		&entity.Abbreviations,
		&entity.Scope.State,
		&entity.Scope.Stream,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.MasterEntity{}, err
	}
	entity.Kind = domain.EntityKind(kind)
	if createdAt.Valid {
		entity.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		entity.UpdatedAt = updatedAt.Time
	}
	return entity, nil
}

func collectMasterEntities(rows pgx.Rows) ([]domain.MasterEntity, error) {
	entities := []domain.MasterEntity{}
	for rows.Next() {
		entity, err := scanMasterEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan master entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate master entities: %w", err)
	}
	return entities, nil
}
