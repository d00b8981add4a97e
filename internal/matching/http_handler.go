package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/repository"

	"github.com/google/uuid"
)

type Handler struct {
	engines map[domain.EntityKind]*Engine
	records repository.RawRecordRepository
}

// NewHTTPHandler exposes batch matching runs over JSON. One engine per
// entity kind is wired at startup.
func NewHTTPHandler(engines map[domain.EntityKind]*Engine, records repository.RawRecordRepository) http.Handler {
	return &Handler{engines: engines, records: records}
}

type runPayload struct {
	Kind      string   `json:"kind"`
	RecordIDs []string `json:"recordIds"`
	Limit     int      `json:"limit"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var payload runPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	kind := domain.EntityKind(payload.Kind)
	engine, ok := h.engines[kind]
	if !ok {
		http.Error(w, fmt.Sprintf("no matching engine for kind %q", payload.Kind), http.StatusBadRequest)
		return
	}

	var (
		batch []domain.RawRecord
		err   error
	)
	if len(payload.RecordIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(payload.RecordIDs))
		for _, raw := range payload.RecordIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				http.Error(w, fmt.Sprintf("invalid record id %q: %v", raw, parseErr), http.StatusBadRequest)
				return
			}
			ids = append(ids, id)
		}
		batch, err = h.records.GetByIDs(r.Context(), ids)
	} else {
		batch, err = h.records.ListUndecided(r.Context(), kind, payload.Limit)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load records: %v", err), http.StatusInternalServerError)
		return
	}

	result, err := engine.RunBatch(r.Context(), batch)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, fmt.Sprintf("matching run failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
