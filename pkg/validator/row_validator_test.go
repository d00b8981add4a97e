package validator

import "testing"

func TestParseCellInt(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1234", 1234, false},
		{" 1234 ", 1234, false},
		{"1,234", 1234, false},
		{"2023.0", 2023, false},
		{"2023.000", 2023, false},
		{"2023.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseCellInt(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseCellInt(%q) expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseCellInt(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
}

func TestValidateRowAccepts(t *testing.T) {
	rv := NewRowValidator()
	result := rv.ValidateRow(RowValues{
		Institution: "Government Medical College Kottayam",
		Course:      "MBBS",
		State:       "Kerala",
		Year:        "2024",
		Round:       "1",
		Rank:        "912",
	})
	if !result.IsValid {
		t.Fatalf("expected valid row, errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestValidateRowRequiresInstitution(t *testing.T) {
	rv := NewRowValidator()
	result := rv.ValidateRow(RowValues{Institution: "  "})
	if result.IsValid {
		t.Fatalf("expected invalid row")
	}
	if len(result.Errors) == 0 || result.Errors[0].Field != "institution" {
		t.Fatalf("errors = %+v", result.Errors)
	}
}

func TestValidateRowYearWindow(t *testing.T) {
	rv := NewRowValidator()
	result := rv.ValidateRow(RowValues{Institution: "X", Year: "1865"})
	if result.IsValid {
		t.Fatalf("expected year outside window to fail")
	}
	result = rv.ValidateRow(RowValues{Institution: "X", Year: "not-a-year"})
	if result.IsValid {
		t.Fatalf("expected unparseable year to fail")
	}
}

func TestValidateRowNegativeRank(t *testing.T) {
	rv := NewRowValidator()
	result := rv.ValidateRow(RowValues{Institution: "X", Rank: "-5"})
	if result.IsValid {
		t.Fatalf("expected negative rank to fail")
	}
}

func TestValidateRowWarnsOnMissingOptionalColumns(t *testing.T) {
	rv := NewRowValidator()
	result := rv.ValidateRow(RowValues{Institution: "X"})
	if !result.IsValid {
		t.Fatalf("missing optional columns must not invalidate the row: %+v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("warnings = %+v, want course and state", result.Warnings)
	}
}
