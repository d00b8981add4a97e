package validator

import (
	"fmt"
	"strconv"
	"strings"
)

// RowValidator checks mapped cell values before they become raw records.
// It works on strings because spreadsheet cells arrive as strings; numeric
// parsing (including Excel's "2023.0" artifacts) happens here, once.
type RowValidator struct {
	MinYear int
	MaxYear int
}

// NewRowValidator returns a validator with the supported year window.
func NewRowValidator() *RowValidator {
	return &RowValidator{MinYear: 1950, MaxYear: 2100}
}

// ValidationError describes a single field problem in a row.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ValidationResult is the outcome for one row. Errors block ingestion of the
// row; warnings do not.
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func (r *ValidationResult) addError(field, message, value string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

func (r *ValidationResult) addWarning(field, message, value string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message, Value: value})
}

// RowValues holds the cells of one row after header mapping.
type RowValues struct {
	Institution string
	Course      string
	State       string
	Category    string
	Year        string
	Round       string
	Rank        string
}

// ValidateRow applies all field rules to one mapped row.
func (rv *RowValidator) ValidateRow(values RowValues) ValidationResult {
	result := ValidationResult{IsValid: true}

	if strings.TrimSpace(values.Institution) == "" {
		result.addError("institution", "institution name is required", values.Institution)
	}

	if strings.TrimSpace(values.Year) != "" {
		year, err := ParseCellInt(values.Year)
		switch {
		case err != nil:
			result.addError("year", fmt.Sprintf("year is not a number: %v", err), values.Year)
		case year < rv.MinYear || year > rv.MaxYear:
			result.addError("year", fmt.Sprintf("year %d outside %d..%d", year, rv.MinYear, rv.MaxYear), values.Year)
		}
	}

	if strings.TrimSpace(values.Round) != "" {
		round, err := ParseCellInt(values.Round)
		switch {
		case err != nil:
			result.addError("round", fmt.Sprintf("round is not a number: %v", err), values.Round)
		case round < 0:
			result.addError("round", fmt.Sprintf("round %d is negative", round), values.Round)
		}
	}

	if strings.TrimSpace(values.Rank) != "" {
		rank, err := ParseCellInt(values.Rank)
		switch {
		case err != nil:
			result.addError("rank", fmt.Sprintf("rank is not a number: %v", err), values.Rank)
		case rank < 0:
			result.addError("rank", fmt.Sprintf("rank %d is negative", rank), values.Rank)
		}
	}

	if strings.TrimSpace(values.Course) == "" {
		result.addWarning("course", "course column is empty", "")
	}
	if strings.TrimSpace(values.State) == "" {
		result.addWarning("state", "state column is empty", "")
	}

	return result
}

// ParseCellInt parses a spreadsheet cell as an integer. Thousands separators
// and a trailing ".0" (Excel exporting numerics as floats) are tolerated.
func ParseCellInt(cell string) (int, error) {
	cleaned := strings.TrimSpace(cell)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if dot := strings.Index(cleaned, "."); dot >= 0 {
		frac := cleaned[dot+1:]
		if strings.Trim(frac, "0") == "" {
			cleaned = cleaned[:dot]
		}
	}
	value, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q as integer: %w", cell, err)
	}
	return value, nil
}
