package matching

import (
	"strings"

	"github.com/admitgrid/reconcile/internal/domain"
)

// noteKind prefixes a queued decision's note so the reason a record reached
// manual review survives in the decision itself, not just the ledger.
type noteKind string

const (
	noteValidation   noteKind = "validation"
	noteRegistry     noteKind = "registry-unavailable"
	noteAmbiguous    noteKind = "ambiguous"
	noteNoCandidates noteKind = "no-candidates"
)

func (n noteKind) format(detail string) string {
	if detail == "" {
		return string(n)
	}
	return string(n) + ": " + detail
}

// errFromNote maps a queued note back to the taxonomy sentinel it encodes,
// for per-pass accounting.
func errFromNote(note string) error {
	switch {
	case strings.HasPrefix(note, string(noteValidation)):
		return domain.ErrValidation
	case strings.HasPrefix(note, string(noteRegistry)):
		return domain.ErrRegistryUnavailable
	case strings.HasPrefix(note, string(noteAmbiguous)):
		return domain.ErrAmbiguousMatch
	default:
		return nil
	}
}
