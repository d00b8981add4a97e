package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
)

type Handler struct {
	ledger *Ledger
}

// NewHTTPHandler exposes ledger queries and statistics over JSON.
func NewHTTPHandler(ledger *Ledger) http.Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/stats"):
		h.handleStats(w, r)
	case r.Method == http.MethodGet:
		h.handleQuery(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.ledger.Query(r.Context(), filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query audit log: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"entries": entries})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to compute audit stats: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func filterFromQuery(r *http.Request) (domain.AuditFilter, error) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		Actor:       q.Get("actor"),
		Action:      domain.AuditAction(q.Get("action")),
		SubjectKind: domain.AuditSubjectKind(q.Get("subjectKind")),
		Search:      q.Get("search"),
	}

	if raw := q.Get("subjectId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.AuditFilter{}, fmt.Errorf("invalid subjectId: %v", err)
		}
		filter.SubjectID = &id
	}
	for name, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return domain.AuditFilter{}, fmt.Errorf("invalid %s: %v", name, err)
			}
			*target = &t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return domain.AuditFilter{}, fmt.Errorf("invalid limit: %v", err)
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return domain.AuditFilter{}, fmt.Errorf("invalid offset: %v", err)
		}
		filter.Offset = offset
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
