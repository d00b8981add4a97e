package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/admitgrid/reconcile/internal/auth"
	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

// NewHTTPHandler exposes the review queue and verdict intake over JSON.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet:
		h.handleSnapshot(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/bulk"):
		h.handleBulkVerdict(w, r)
	case r.Method == http.MethodPost:
		h.handleVerdict(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, err := h.service.Snapshot(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load review queue: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"items": items})
}

type verdictPayload struct {
	RecordID string `json:"recordId"`
	Kind     string `json:"kind"`
	Verdict  string `json:"verdict"` // confirm | reject
	EntityID string `json:"entityId,omitempty"`
	Actor    string `json:"actor"`
}

func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload verdictPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	recordID, kind, err := parseSubject(payload.RecordID, payload.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actor := resolveActor(r, payload.Actor)
	if actor == "" {
		http.Error(w, "actor is required", http.StatusBadRequest)
		return
	}

	var decision domain.MatchDecision
	switch payload.Verdict {
	case "confirm":
		entityID, parseErr := uuid.Parse(strings.TrimSpace(payload.EntityID))
		if parseErr != nil {
			http.Error(w, fmt.Sprintf("invalid entityId: %v", parseErr), http.StatusBadRequest)
			return
		}
		decision, err = h.service.Confirm(r.Context(), recordID, kind, entityID, actor)
	case "reject":
		decision, err = h.service.Reject(r.Context(), recordID, kind, actor)
	default:
		http.Error(w, fmt.Sprintf("unknown verdict %q", payload.Verdict), http.StatusBadRequest)
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("failed to apply verdict: %v", err), status)
		return
	}
	writeJSON(w, decision)
}

type bulkVerdictPayload struct {
	RecordIDs []string `json:"recordIds"`
	Kind      string   `json:"kind"`
	Verdict   string   `json:"verdict"` // approve | reject
	Actor     string   `json:"actor"`
}

func (h *Handler) handleBulkVerdict(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload bulkVerdictPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	kind := domain.EntityKind(payload.Kind)
	if !kind.Valid() {
		http.Error(w, fmt.Sprintf("invalid kind %q", payload.Kind), http.StatusBadRequest)
		return
	}
	actor := resolveActor(r, payload.Actor)
	if actor == "" {
		http.Error(w, "actor is required", http.StatusBadRequest)
		return
	}

	recordIDs := make([]uuid.UUID, 0, len(payload.RecordIDs))
	for _, raw := range payload.RecordIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid record id %q: %v", raw, err), http.StatusBadRequest)
			return
		}
		recordIDs = append(recordIDs, id)
	}

	var (
		decisions []domain.MatchDecision
		err       error
	)
	switch payload.Verdict {
	case "approve":
		decisions, err = h.service.BulkApprove(r.Context(), recordIDs, kind, actor)
	case "reject":
		decisions, err = h.service.BulkReject(r.Context(), recordIDs, kind, actor)
	default:
		http.Error(w, fmt.Sprintf("unknown bulk verdict %q", payload.Verdict), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("bulk verdict failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"decisions": decisions})
}

// resolveActor prefers the explicit payload field, falling back to the
// identity the auth middleware extracted from the request headers.
func resolveActor(r *http.Request, payloadActor string) string {
	if strings.TrimSpace(payloadActor) != "" {
		return strings.TrimSpace(payloadActor)
	}
	if actor, ok := auth.ActorFromContext(r.Context()); ok {
		return actor
	}
	return ""
}

func parseSubject(rawRecordID, rawKind string) (uuid.UUID, domain.EntityKind, error) {
	recordID, err := uuid.Parse(strings.TrimSpace(rawRecordID))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid recordId: %v", err)
	}
	kind := domain.EntityKind(rawKind)
	if !kind.Valid() {
		return uuid.Nil, "", fmt.Errorf("invalid kind %q", rawKind)
	}
	return recordID, kind, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
