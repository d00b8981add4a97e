package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction enumerates the recorded decision kinds. The set mirrors what a
// reviewer or the engine can actually do to a record or registry entity.
type AuditAction string

const (
	ActionApprove     AuditAction = "approve"
	ActionReject      AuditAction = "reject"
	ActionManualMatch AuditAction = "manual-match"
	ActionBulkApprove AuditAction = "bulk-approve"
	ActionBulkReject  AuditAction = "bulk-reject"
	ActionCreateAlias AuditAction = "create-alias"
	ActionEdit        AuditAction = "edit"
	ActionDelete      AuditAction = "delete"
)

// AuditSubjectKind names what an audit entry is about.
type AuditSubjectKind string

const (
	SubjectRecord   AuditSubjectKind = "record"
	SubjectEntity   AuditSubjectKind = "entity"
	SubjectDecision AuditSubjectKind = "decision"
	SubjectLedger   AuditSubjectKind = "ledger"
)

// AuditLogEntry is one append-only ledger row. Entries are self-contained;
// no entry ever mutates another.
type AuditLogEntry struct {
	ID            uuid.UUID        `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Actor         string           `json:"actor"`
	Action        AuditAction      `json:"action"`
	SubjectKind   AuditSubjectKind `json:"subject_kind"`
	SubjectID     uuid.UUID        `json:"subject_id"`
	SubjectLabel  string           `json:"subject_label"`
	Details       string           `json:"details,omitempty"`
	PreviousState string           `json:"previous_state,omitempty"`
	NewState      string           `json:"new_state,omitempty"`
}

// AuditFilter selects ledger entries for retrieval. Zero values mean "no
// constraint on this dimension".
type AuditFilter struct {
	Actor       string
	Action      AuditAction
	SubjectKind AuditSubjectKind
	SubjectID   *uuid.UUID
	Search      string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// AuditStats aggregates ledger counts along the dimensions the review
// dashboard cares about.
type AuditStats struct {
	Total         int64            `json:"total"`
	ByAction      map[string]int64 `json:"by_action"`
	BySubjectKind map[string]int64 `json:"by_subject_kind"`
	ByActor       map[string]int64 `json:"by_actor"`
}
