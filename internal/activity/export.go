package activity

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// exportHeader is the column order shared by both export formats.
var exportHeader = []string{"Timestamp", "Learner", "Course", "Item", "Type", "Score", "Result"}

func exportRow(e Entry) []string {
	score := ""
	if e.Score != nil {
		score = strconv.Itoa(*e.Score)
	}
	result := ""
	if e.Passed != nil {
		if *e.Passed {
			result = "PASSED"
		} else {
			result = "FAILED"
		}
	}
	return []string{
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.UserID,
		e.CourseID,
		e.ItemName,
		string(e.Type),
		score,
		result,
	}
}

// WriteXLSX writes entries as a spreadsheet with a header row.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Activity"
	f.SetSheetName(f.GetSheetName(0), sheet)

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		row := exportRow(e)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes entries as comma-separated rows with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		if err := cw.Write(exportRow(e)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
