package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/normalize"
	"github.com/admitgrid/reconcile/internal/repository"
	"github.com/admitgrid/reconcile/pkg/validator"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Column aliases seen across counselling-body publications. Headers are
// sanitized before lookup, so only the underscore forms appear here.
var columnAliases = map[string][]string{
	"institution": {"institution", "institute", "college", "college_name", "institute_name",
		"allotted_institute", "allotted_college", "hospital", "hospital_name"},
	"course": {"course", "course_name", "allotted_course", "branch", "program", "programme", "subject"},
	"state":  {"state", "state_name", "institute_state", "domicile_state"},
	"category": {"category", "allotted_category", "candidate_category", "seat_category",
		"quota_category", "alloted_category"},
	"year":  {"year", "admission_year", "counselling_year", "session"},
	"round": {"round", "round_no", "counselling_round", "allotment_round"},
	"rank":  {"rank", "air", "all_india_rank", "neet_rank", "merit_rank", "cr"},
}

// Service turns uploaded counselling spreadsheets into raw records.
type Service struct {
	records    repository.RawRecordRepository
	classifier normalize.Classifier
	validator  *validator.RowValidator
	logger     zerolog.Logger
}

// NewService creates an ingestion service. The classifier is consulted when a
// row carries no state column but the institution text ends in a known state
// name.
func NewService(records repository.RawRecordRepository, classifier normalize.Classifier, logger zerolog.Logger) *Service {
	return &Service{
		records:    records,
		classifier: classifier,
		validator:  validator.NewRowValidator(),
		logger:     logger.With().Str("component", "ingestion").Logger(),
	}
}

// Request describes one upload.
type Request struct {
	FileName       string
	SourceFileID   string
	HeaderRowIndex *int
	DefaultYear    int // used when the file has no year column
	DefaultRound   int // used when the file has no round column
	Data           io.Reader
}

// RowError reports why a row was skipped. RowNumber is 1-based as the user
// sees it in a spreadsheet, header row included.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary reports the outcome of one ingestion.
type Summary struct {
	SourceFileID string     `json:"sourceFileId"`
	TotalRows    int        `json:"totalRows"`
	Ingested     int        `json:"ingested"`
	Skipped      int        `json:"skipped"`
	Errors       []RowError `json:"errors,omitempty"`
}

// Ingest parses the upload, validates every row and stores the valid ones as
// raw records. Row failures are reported in the summary and never abort the
// batch; only file-level problems (unreadable payload, no usable header)
// return an error.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{SourceFileID: req.SourceFileID}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}

	table, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}

	columns, err := mapColumns(table.headers)
	if err != nil {
		return summary, err
	}

	records := make([]domain.RawRecord, 0, len(table.rows))
	for idx, row := range table.rows {
		rowNumber := table.rowNumbers[idx]
		summary.TotalRows++

		values := columns.extract(row)
		result := s.validator.ValidateRow(values)
		if !result.IsValid {
			summary.Skipped++
			summary.Errors = append(summary.Errors, RowError{
				RowNumber: rowNumber,
				Message:   joinValidationErrors(result.Errors),
			})
			continue
		}

		record, err := s.buildRecord(req, values)
		if err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
			continue
		}
		records = append(records, record)
	}

	if len(records) > 0 {
		inserted, err := s.records.CreateBatch(ctx, records)
		if err != nil {
			return summary, fmt.Errorf("failed to store raw records: %w", err)
		}
		summary.Ingested = inserted
	}

	s.logger.Info().
		Str("file", req.FileName).
		Str("source_file_id", req.SourceFileID).
		Int("total", summary.TotalRows).
		Int("ingested", summary.Ingested).
		Int("skipped", summary.Skipped).
		Msg("ingestion finished")

	return summary, nil
}

// buildRecord converts a validated row into a raw record. Pincode noise is
// stripped from the institution text at the door so every later stage sees
// the same cleaned form.
func (s *Service) buildRecord(req Request, values validator.RowValues) (domain.RawRecord, error) {
	year := req.DefaultYear
	if strings.TrimSpace(values.Year) != "" {
		parsed, err := validator.ParseCellInt(values.Year)
		if err != nil {
			return domain.RawRecord{}, err
		}
		year = parsed
	}

	round := req.DefaultRound
	if strings.TrimSpace(values.Round) != "" {
		parsed, err := validator.ParseCellInt(values.Round)
		if err != nil {
			return domain.RawRecord{}, err
		}
		round = parsed
	}

	rank := 0
	if strings.TrimSpace(values.Rank) != "" {
		parsed, err := validator.ParseCellInt(values.Rank)
		if err != nil {
			return domain.RawRecord{}, err
		}
		rank = parsed
	}

	institution := normalize.StripPincode(strings.TrimSpace(values.Institution))
	state := strings.TrimSpace(values.State)
	if state == "" {
		state = s.inferState(institution)
	}

	record := domain.NewRawRecord(
		institution,
		strings.TrimSpace(values.Course),
		state,
		strings.TrimSpace(values.Category),
		year,
		round,
		rank,
		req.SourceFileID,
	)
	if err := record.Validate(); err != nil {
		return domain.RawRecord{}, err
	}
	return record, nil
}

// inferState looks at the trailing tokens of the institution text for a state
// name the gazetteer recognizes. Counselling rows frequently append the state
// after a comma instead of filling the state column.
func (s *Service) inferState(institution string) string {
	if s.classifier == nil {
		return ""
	}
	canonical := normalize.Name(institution)
	tokens := normalize.Tokens(canonical)
	for width := 3; width >= 1; width-- {
		if len(tokens) < width {
			continue
		}
		tail := strings.Join(tokens[len(tokens)-width:], " ")
		if s.classifier.Classify(tail) == normalize.ClassState {
			return normalize.State(tail)
		}
	}
	return ""
}

// columnMap holds the resolved index of each supported column, -1 if absent.
type columnMap struct {
	institution int
	course      int
	state       int
	category    int
	year        int
	round       int
	rank        int
}

func mapColumns(headers []string) (columnMap, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(h)] = i
	}

	find := func(field string) int {
		for _, alias := range columnAliases[field] {
			if i, ok := index[alias]; ok {
				return i
			}
		}
		return -1
	}

	columns := columnMap{
		institution: find("institution"),
		course:      find("course"),
		state:       find("state"),
		category:    find("category"),
		year:        find("year"),
		round:       find("round"),
		rank:        find("rank"),
	}
	if columns.institution < 0 {
		return columnMap{}, fmt.Errorf("no institution column found among headers %v", headers)
	}
	return columns, nil
}

func (c columnMap) extract(row []string) validator.RowValues {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}
	return validator.RowValues{
		Institution: cell(c.institution),
		Course:      cell(c.course),
		State:       cell(c.state),
		Category:    cell(c.category),
		Year:        cell(c.year),
		Round:       cell(c.round),
		Rank:        cell(c.rank),
	}
}

func joinValidationErrors(errs []validator.ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// table is a parsed spreadsheet with a detected header row. rowNumbers keeps
// each kept data row's 1-based spreadsheet position, so skipped blank rows
// never shift the numbers reported back to the user.
type table struct {
	headers    []string
	rows       [][]string
	rowNumbers []int
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (table, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return buildTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return table{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return buildTable(rows, headerRowIndex)
}

// buildTable picks the header row (first non-empty row unless an explicit
// index is given) and pads data rows to the header width.
func buildTable(records [][]string, headerRowIndex *int) (table, error) {
	if len(records) == 0 {
		return table{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	var rowNumbers []int

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return table{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if !rowHasContent(records[*headerRowIndex]) {
			return table{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		for idx := *headerRowIndex + 1; idx < len(records); idx++ {
			if rowHasContent(records[idx]) {
				dataRows = append(dataRows, records[idx])
				rowNumbers = append(rowNumbers, idx+1)
			}
		}
	} else {
		for idx, row := range records {
			if !rowHasContent(row) {
				continue
			}
			if headerRow == nil {
				headerRow = row
				continue
			}
			dataRows = append(dataRows, row)
			rowNumbers = append(rowNumbers, idx+1)
		}
	}

	if headerRow == nil {
		return table{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return table{headers: headers, rows: dataRows, rowNumbers: rowNumbers}, nil
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
