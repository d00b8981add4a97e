package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// EntityLoader batches master-entity fetches. Assembling a review-queue
// snapshot touches the same handful of candidate entities many times over;
// the loader collapses those into one GetByIDs round trip.
type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(registry repository.MasterRegistry) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid UUID: %w", err)}}
			}
			ids[i] = id
		}

		entities, err := registry.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		entityMap := make(map[uuid.UUID]domain.MasterEntity, len(entities))
		for _, e := range entities {
			entityMap[e.ID] = e
		}

		// Results must line up with the requested key order.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if e, ok := entityMap[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// Load fetches one entity through the batcher.
func (l *EntityLoader) Load(ctx context.Context, id uuid.UUID) (domain.MasterEntity, bool, error) {
	value, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.MasterEntity{}, false, err
	}
	entity, ok := value.(domain.MasterEntity)
	return entity, ok, nil
}

// LoadAll schedules every id before resolving, so the batcher sees the whole
// set at once and issues a single GetByIDs round trip. Resolving Load thunks
// one at a time would dispatch single-key batches instead.
func (l *EntityLoader) LoadAll(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.MasterEntity, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]domain.MasterEntity{}, nil
	}
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(id.String())
	}

	values, errs := l.Loader.LoadMany(ctx, keys)()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	entities := make(map[uuid.UUID]domain.MasterEntity, len(values))
	for _, value := range values {
		if entity, ok := value.(domain.MasterEntity); ok {
			entities[entity.ID] = entity
		}
	}
	return entities, nil
}
