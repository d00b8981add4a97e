package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"
	"github.com/admitgrid/reconcile/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Format selects the output encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats this service cannot produce.
var ErrUnknownFormat = errors.New("unknown export format")

var columns = []string{
	"record_id", "institution_text", "course_text", "state_text", "category_text",
	"year", "round", "rank", "entity_kind", "tier", "score", "method",
	"matched_entity", "decided_by", "decided_at",
}

// Service flattens match decisions, their raw records and the matched
// canonical names into downloadable reports.
type Service struct {
	decisions repository.MatchDecisionRepository
	records   repository.RawRecordRepository
	registry  repository.MasterRegistry
	pageSize  int
	logger    zerolog.Logger
}

// NewService creates a decision export service.
func NewService(
	decisions repository.MatchDecisionRepository,
	records repository.RawRecordRepository,
	registry repository.MasterRegistry,
	logger zerolog.Logger,
) *Service {
	return &Service{
		decisions: decisions,
		records:   records,
		registry:  registry,
		pageSize:  500,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// Request selects which decisions to export. Kind is optional; Tier is not.
type Request struct {
	Tier   domain.ConfidenceTier
	Kind   domain.EntityKind
	Format Format
	Limit  int // cap on exported decisions, 0 means all
}

// Result is a fully rendered report ready to be written to a response.
type Result struct {
	FileName    string
	ContentType string
	Data        []byte
}

type row struct {
	record  domain.RawRecord
	dec     domain.MatchDecision
	matched string
}

// Export pages through the requested tier, joins in records and entity names
// and renders the chosen format.
func (s *Service) Export(ctx context.Context, req Request) (Result, error) {
	if !req.Tier.Valid() {
		return Result{}, fmt.Errorf("invalid tier %q", req.Tier)
	}

	rows, err := s.collect(ctx, req)
	if err != nil {
		return Result{}, err
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	base := fmt.Sprintf("decisions_%s_%s", req.Tier, stamp)

	var result Result
	switch req.Format {
	case FormatCSV, "":
		data, err := renderCSV(rows)
		if err != nil {
			return Result{}, err
		}
		result = Result{FileName: base + ".csv", ContentType: "text/csv", Data: data}
	case FormatXLSX:
		data, err := renderXLSX(rows)
		if err != nil {
			return Result{}, err
		}
		result = Result{
			FileName:    base + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFormat, req.Format)
	}

	s.logger.Info().
		Str("tier", string(req.Tier)).
		Str("format", string(req.Format)).
		Int("rows", len(rows)).
		Msg("export rendered")
	return result, nil
}

func (s *Service) collect(ctx context.Context, req Request) ([]row, error) {
	var rows []row
	for offset := 0; ; offset += s.pageSize {
		page, err := s.decisions.ListByTier(ctx, req.Tier, s.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list decisions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		joined, err := s.join(ctx, page, req.Kind)
		if err != nil {
			return nil, err
		}
		rows = append(rows, joined...)

		if req.Limit > 0 && len(rows) >= req.Limit {
			rows = rows[:req.Limit]
			break
		}
		if len(page) < s.pageSize {
			break
		}
	}
	return rows, nil
}

func (s *Service) join(ctx context.Context, page []domain.MatchDecision, kind domain.EntityKind) ([]row, error) {
	var recordIDs, entityIDs []uuid.UUID
	for _, d := range page {
		if kind != "" && d.EntityKind != kind {
			continue
		}
		recordIDs = append(recordIDs, d.RecordID)
		if d.EntityID != nil {
			entityIDs = append(entityIDs, *d.EntityID)
		}
	}
	if len(recordIDs) == 0 {
		return nil, nil
	}

	records, err := s.records.GetByIDs(ctx, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	recordByID := make(map[uuid.UUID]domain.RawRecord, len(records))
	for _, r := range records {
		recordByID[r.ID] = r
	}

	nameByID := make(map[uuid.UUID]string)
	if len(entityIDs) > 0 {
		entities, err := s.registry.GetByIDs(ctx, entityIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load entities: %w", err)
		}
		for _, e := range entities {
			nameByID[e.ID] = e.PrimaryName
		}
	}

	rows := make([]row, 0, len(page))
	for _, d := range page {
		if kind != "" && d.EntityKind != kind {
			continue
		}
		r := row{record: recordByID[d.RecordID], dec: d}
		if d.EntityID != nil {
			r.matched = nameByID[*d.EntityID]
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (r row) cells() []string {
	return []string{
		r.dec.RecordID.String(),
		r.record.InstitutionText,
		r.record.CourseText,
		r.record.StateText,
		r.record.CategoryText,
		strconv.Itoa(r.record.Year),
		strconv.Itoa(r.record.Round),
		strconv.Itoa(r.record.Rank),
		string(r.dec.EntityKind),
		string(r.dec.Tier),
		strconv.FormatFloat(r.dec.Score, 'f', 4, 64),
		string(r.dec.Method),
		r.matched,
		r.dec.DecidedBy,
		r.dec.DecidedAt.UTC().Format(time.RFC3339),
	}
}

func renderCSV(rows []row) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(r.cells()); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for col, header := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	for i, r := range rows {
		for col, value := range r.cells() {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
