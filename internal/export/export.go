// Package export writes estimation frames as CSV or XLSX tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// SheetName is the worksheet that holds the frame in XLSX output.
const SheetName = "Estimation"

// WriteCSV writes the frame with a header row. Missing values are empty cells.
func WriteCSV(w io.Writer, frame *models.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(models.Columns))
	for _, r := range frame.Rows() {
		for i, v := range r.Values() {
			record[i] = formatCell(i, v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(col int, v float64) string {
	if models.IsMissing(v) {
		return ""
	}
	if col == 0 {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteXLSX writes the frame as a single-sheet workbook. Missing values are
// left as blank cells.
func WriteXLSX(w io.Writer, frame *models.Frame) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for n, r := range frame.Rows() {
		cells := make([]any, len(models.Columns))
		for i, v := range r.Values() {
			switch {
			case models.IsMissing(v):
				cells[i] = nil
			case i == 0:
				cells[i] = r.Index
			default:
				cells[i] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r.Index, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
