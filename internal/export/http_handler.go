package export

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/admitgrid/reconcile/internal/domain"
)

// Handler serves rendered decision reports for download.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a GET download endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	req := Request{
		Tier:   domain.ConfidenceTier(strings.TrimSpace(q.Get("tier"))),
		Kind:   domain.EntityKind(strings.TrimSpace(q.Get("kind"))),
		Format: Format(strings.TrimSpace(q.Get("format"))),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit: %v", err), http.StatusBadRequest)
			return
		}
		req.Limit = limit
	}
	if req.Kind != "" && !req.Kind.Valid() {
		http.Error(w, fmt.Sprintf("invalid kind %q", req.Kind), http.StatusBadRequest)
		return
	}

	result, err := h.service.Export(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownFormat) || strings.Contains(err.Error(), "invalid tier") {
			status = http.StatusBadRequest
		}
		http.Error(w, fmt.Sprintf("export failed: %v", err), status)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
