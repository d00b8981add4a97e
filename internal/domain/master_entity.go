package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind enumerates the canonical entity families held by the master
// registry.
type EntityKind string

const (
	EntityKindCollege  EntityKind = "college"
	EntityKindCourse   EntityKind = "course"
	EntityKindState    EntityKind = "state"
	EntityKindCategory EntityKind = "category"
)

// Valid reports whether the kind is one of the known families.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityKindCollege, EntityKindCourse, EntityKindState, EntityKindCategory:
		return true
	}
	return false
}

// ScopeHints narrows fuzzy candidate searches. For a college the state hint
// bounds the comparison set to one state's institutions.
type ScopeHints struct {
	State  string `json:"state,omitempty"`
	Stream string `json:"stream,omitempty"`
}

// MasterEntity is a canonical registry record. IDs are stable and never
// reused. Aliases only grow: the matching engine may add one when a human
// confirms a match, never remove one.
type MasterEntity struct {
	ID            uuid.UUID  `json:"id"`
	Kind          EntityKind `json:"kind"`
	PrimaryName   string     `json:"primary_name"`
	Aliases       []string   `json:"aliases"`
	Abbreviations []string   `json:"abbreviations"`
	Scope         ScopeHints `json:"scope"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewMasterEntity creates a registry entity with a fresh stable identifier.
func NewMasterEntity(kind EntityKind, primaryName string, scope ScopeHints) MasterEntity {
	now := time.Now()
	return MasterEntity{
		ID:          uuid.New(),
		Kind:        kind,
		PrimaryName: primaryName,
		Scope:       scope,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasAlias reports whether the entity already carries the given alias.
func (e MasterEntity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// AllNames returns the primary name followed by every alias, the full set an
// incoming string may be compared against.
func (e MasterEntity) AllNames() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.PrimaryName)
	names = append(names, e.Aliases...)
	return names
}
