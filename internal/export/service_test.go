package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/admitgrid/reconcile/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubDecisionRepo struct {
	decisions []domain.MatchDecision
}

func (s *stubDecisionRepo) Current(ctx context.Context, recordID uuid.UUID, kind domain.EntityKind) (domain.MatchDecision, error) {
	return domain.MatchDecision{}, domain.ErrNotFound
}

func (s *stubDecisionRepo) ListByTier(ctx context.Context, tier domain.ConfidenceTier, limit, offset int) ([]domain.MatchDecision, error) {
	if offset >= len(s.decisions) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.decisions) {
		end = len(s.decisions)
	}
	return s.decisions[offset:end], nil
}

func (s *stubDecisionRepo) ListPendingReview(ctx context.Context, limit, offset int) ([]domain.MatchDecision, error) {
	return nil, nil
}

func (s *stubDecisionRepo) CountByTier(ctx context.Context) (map[domain.ConfidenceTier]int64, error) {
	return nil, nil
}

type stubRecordRepo struct {
	records map[uuid.UUID]domain.RawRecord
}

func (s *stubRecordRepo) CreateBatch(ctx context.Context, records []domain.RawRecord) (int, error) {
	return 0, nil
}

func (s *stubRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.RawRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return domain.RawRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (s *stubRecordRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for _, id := range ids {
		if record, ok := s.records[id]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubRecordRepo) ListUndecided(ctx context.Context, kind domain.EntityKind, limit int) ([]domain.RawRecord, error) {
	return nil, nil
}

type stubRegistry struct {
	entities map[uuid.UUID]domain.MasterEntity
}

func (s *stubRegistry) Create(ctx context.Context, entity domain.MasterEntity) (domain.MasterEntity, error) {
	return entity, nil
}

func (s *stubRegistry) GetByID(ctx context.Context, id uuid.UUID) (domain.MasterEntity, error) {
	entity, ok := s.entities[id]
	if !ok {
		return domain.MasterEntity{}, domain.ErrNotFound
	}
	return entity, nil
}

func (s *stubRegistry) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.MasterEntity, error) {
	var out []domain.MasterEntity
	for _, id := range ids {
		if entity, ok := s.entities[id]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (s *stubRegistry) LookupByExactName(ctx context.Context, kind domain.EntityKind, name string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (s *stubRegistry) LookupByAlias(ctx context.Context, kind domain.EntityKind, alias string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (s *stubRegistry) CandidatesByScope(ctx context.Context, kind domain.EntityKind, scope domain.ScopeHints) ([]domain.MasterEntity, error) {
	return nil, nil
}

func (s *stubRegistry) AddAlias(ctx context.Context, entityID uuid.UUID, alias string) error {
	return nil
}

func newFixture() (*Service, uuid.UUID) {
	entityID := uuid.New()
	recordID := uuid.New()

	entity := domain.MasterEntity{ID: entityID, Kind: domain.EntityKindCollege, PrimaryName: "GOVERNMENT MEDICAL COLLEGE KOTTAYAM"}
	record := domain.RawRecord{
		ID:              recordID,
		InstitutionText: "Govt. Medical College, Kottayam",
		CourseText:      "MBBS",
		StateText:       "Kerala",
		Year:            2024,
		Round:           1,
		Rank:            912,
	}
	decision := domain.MatchDecision{
		ID:         uuid.New(),
		RecordID:   recordID,
		EntityKind: domain.EntityKindCollege,
		EntityID:   &entityID,
		Tier:       domain.TierHigh,
		Score:      0.95,
		Method:     domain.MethodAbbreviationExpansion,
		DecidedBy:  domain.SystemActor,
		DecidedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}

	svc := NewService(
		&stubDecisionRepo{decisions: []domain.MatchDecision{decision}},
		&stubRecordRepo{records: map[uuid.UUID]domain.RawRecord{recordID: record}},
		&stubRegistry{entities: map[uuid.UUID]domain.MasterEntity{entityID: entity}},
		zerolog.Nop(),
	)
	return svc, recordID
}

func TestExportCSV(t *testing.T) {
	svc, recordID := newFixture()

	result, err := svc.Export(context.Background(), Request{Tier: domain.TierHigh, Format: FormatCSV})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if !strings.HasPrefix(result.FileName, "decisions_high_") || !strings.HasSuffix(result.FileName, ".csv") {
		t.Fatalf("unexpected file name %q", result.FileName)
	}
	if result.ContentType != "text/csv" {
		t.Fatalf("content type = %q", result.ContentType)
	}

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if len(rows[0]) != len(columns) {
		t.Fatalf("header has %d columns, want %d", len(rows[0]), len(columns))
	}

	data := rows[1]
	if data[0] != recordID.String() {
		t.Fatalf("record id cell = %q", data[0])
	}
	if data[1] != "Govt. Medical College, Kottayam" {
		t.Fatalf("institution cell = %q", data[1])
	}
	if data[12] != "GOVERNMENT MEDICAL COLLEGE KOTTAYAM" {
		t.Fatalf("matched entity cell = %q", data[12])
	}
	if data[10] != "0.9500" {
		t.Fatalf("score cell = %q", data[10])
	}
}

func TestExportKindFilter(t *testing.T) {
	svc, _ := newFixture()

	result, err := svc.Export(context.Background(), Request{
		Tier:   domain.TierHigh,
		Kind:   domain.EntityKindCourse,
		Format: FormatCSV,
	})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only after kind filter, got %d rows", len(rows))
	}
}

func TestExportXLSXContentType(t *testing.T) {
	svc, _ := newFixture()

	result, err := svc.Export(context.Background(), Request{Tier: domain.TierHigh, Format: FormatXLSX})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if !strings.HasSuffix(result.FileName, ".xlsx") {
		t.Fatalf("file name = %q", result.FileName)
	}
	if len(result.Data) == 0 {
		t.Fatal("xlsx payload is empty")
	}
	// xlsx files are zip archives
	if !bytes.HasPrefix(result.Data, []byte("PK")) {
		t.Fatalf("payload does not look like a workbook: % x", result.Data[:4])
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newFixture()

	_, err := svc.Export(context.Background(), Request{Tier: domain.TierHigh, Format: "pdf"})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestExportRejectsInvalidTier(t *testing.T) {
	svc, _ := newFixture()

	_, err := svc.Export(context.Background(), Request{Tier: "huge", Format: FormatCSV})
	if err == nil || !strings.Contains(err.Error(), "invalid tier") {
		t.Fatalf("err = %v, want invalid tier", err)
	}
}
