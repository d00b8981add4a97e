package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RawRecord is one admission/counselling row as it arrived from a source
// publication. Immutable once ingested; all matching works on copies.
type RawRecord struct {
	ID              uuid.UUID `json:"id"`
	InstitutionText string    `json:"institution_text"`
	CourseText      string    `json:"course_text"`
	StateText       string    `json:"state_text,omitempty"`
	CategoryText    string    `json:"category_text,omitempty"`
	Year            int       `json:"year"`
	Round           int       `json:"round"`
	Rank            int       `json:"rank"`
	SourceFileID    string    `json:"source_file_id"`
}

// NewRawRecord builds a record with a fresh synthetic identifier.
func NewRawRecord(institutionText, courseText, stateText, categoryText string, year, round, rank int, sourceFileID string) RawRecord {
	return RawRecord{
		ID:              uuid.New(),
		InstitutionText: institutionText,
		CourseText:      courseText,
		StateText:       stateText,
		CategoryText:    categoryText,
		Year:            year,
		Round:           round,
		Rank:            rank,
		SourceFileID:    sourceFileID,
	}
}

// Validate checks the fields the matching engine depends on. A record that
// fails validation never enters scoring; it is routed straight to manual
// review with an audit note.
func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.InstitutionText) == "" {
		return fmt.Errorf("%w: institution text is empty", ErrValidation)
	}
	if r.Year < 1950 || r.Year > 2100 {
		return fmt.Errorf("%w: year %d out of range", ErrValidation, r.Year)
	}
	if r.Rank < 0 {
		return fmt.Errorf("%w: negative rank %d", ErrValidation, r.Rank)
	}
	return nil
}
