package domain

import "errors"

// Error taxonomy for the matching core. Validation and ambiguity failures
// route records to manual review; audit write failures roll the record's
// decision back so it can be retried.
var (
	// ErrValidation marks a malformed raw record. Not fatal: the record is
	// routed to manual review with an audit note.
	ErrValidation = errors.New("validation failed")

	// ErrRegistryUnavailable marks a failed master registry lookup. Retried
	// with bounded backoff; if retries exhaust the record goes to review.
	ErrRegistryUnavailable = errors.New("master registry unavailable")

	// ErrAmbiguousMatch is the designed outcome of the tie-break rule, not a
	// fault.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrAuditWriteFailure means a decision's ledger entry could not be made
	// durable. The decision must not be considered final.
	ErrAuditWriteFailure = errors.New("audit write failed")

	// ErrDecisionWithoutEntity flags an automatic-tier decision missing its
	// entity reference.
	ErrDecisionWithoutEntity = errors.New("automatic decision requires an entity id")

	// ErrNotFound is returned by repositories when a subject does not exist.
	ErrNotFound = errors.New("not found")
)
