package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/pppwatch/internal/models"
)

func testFrame(t *testing.T) *models.Frame {
	t.Helper()
	nan := math.NaN()
	f, err := models.NewFrame([]models.Row{
		{
			Index: 2000, PriceA: 100, PriceB: 100, PriceRatio: 1, Rate: 20,
			InstantCoef: 20, RunningCoef: 20, Estimate: 20, RelativeError: 0,
			ErrorMean: 0, ErrorStd: nan, ErrorLow: nan, ErrorHigh: nan,
			EstimateLow: nan, EstimateHigh: nan,
		},
		{
			Index: 2001, PriceA: 110, PriceB: 100, PriceRatio: 1.1, Rate: 23,
			InstantCoef: 20.5, RunningCoef: 20.25, Estimate: 22.5, RelativeError: 0.25,
			ErrorMean: 0.125, ErrorStd: 0.5, ErrorLow: -0.875, ErrorHigh: 1.125,
			EstimateLow: 2.5, EstimateHigh: 47.5,
		},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testFrame(t)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(models.Columns, ",") {
		t.Errorf("header = %v", records[0])
	}

	first := records[1]
	if first[0] != "2000" {
		t.Errorf("index = %q, want 2000", first[0])
	}
	for _, col := range []int{10, 11, 12, 13, 14} {
		if first[col] != "" {
			t.Errorf("%s = %q, want empty", models.Columns[col], first[col])
		}
	}
	if first[8] != "0" {
		t.Errorf("relative_error = %q, want 0", first[8])
	}

	second := records[2]
	if second[3] != "1.1" || second[14] != "47.5" {
		t.Errorf("unexpected values %v", second)
	}
}

func TestWriteCSV_EmptyFrame(t *testing.T) {
	empty, _ := models.NewFrame(nil)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, empty); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != strings.Join(models.Columns, ",") {
		t.Errorf("got %q, want header only", got)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, testFrame(t)); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	if name := f.GetSheetName(0); name != SheetName {
		t.Errorf("sheet = %q, want %q", name, SheetName)
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if len(rows[0]) != len(models.Columns) || rows[0][0] != models.ColIndex {
		t.Errorf("header = %v", rows[0])
	}

	// Trailing blank cells are trimmed, so the first row stops at error_mean
	if len(rows[1]) != 10 {
		t.Errorf("first data row has %d cells, want 10: %v", len(rows[1]), rows[1])
	}
	if rows[1][0] != "2000" {
		t.Errorf("index = %q, want 2000", rows[1][0])
	}

	if len(rows[2]) != len(models.Columns) {
		t.Fatalf("second data row has %d cells", len(rows[2]))
	}
	high, err := strconv.ParseFloat(rows[2][14], 64)
	if err != nil || high != 47.5 {
		t.Errorf("estimate_high = %q, want 47.5", rows[2][14])
	}
}
