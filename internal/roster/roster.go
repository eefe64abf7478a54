// Package roster converts student lists to and from .xlsx workbooks.
package roster

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"studentapi/internal/model"
)

const (
	// SheetName is the sheet written by Write.
	SheetName = "Students"
	// ContentType is the MIME type of the produced workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{"ID", "FirstName", "LastName", "Program"}

var (
	// ErrNoSheets is returned for workbooks without any sheet.
	ErrNoSheets = errors.New("workbook has no sheets")
	// ErrMissingColumns is returned when the header row lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")
)

// Row is one data row read from a workbook. Line is the 1-based
// spreadsheet row number, for error reporting.
type Row struct {
	Line  int
	Input model.StudentInput
}

// Write renders students into a single-sheet workbook.
func Write(w io.Writer, students []model.Student) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, s := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{s.ID.String(), s.FirstName, s.LastName, s.Program}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Read parses the first sheet of a workbook. Columns are located by header
// name, so their order is free and extra columns (such as ID) are ignored.
// Blank rows are skipped.
func Read(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMissingColumns)
	}

	cols, err := locateColumns(rows[0])
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		out = append(out, Row{
			Line: i + 2,
			Input: model.StudentInput{
				FirstName: cellAt(cells, cols.firstName),
				LastName:  cellAt(cells, cols.lastName),
				Program:   cellAt(cells, cols.program),
			},
		})
	}
	return out, nil
}

type columns struct {
	firstName, lastName, program int
}

func locateColumns(headerRow []string) (columns, error) {
	cols := columns{firstName: -1, lastName: -1, program: -1}
	for i, name := range headerRow {
		switch normalize(name) {
		case "firstname":
			cols.firstName = i
		case "lastname":
			cols.lastName = i
		case "program":
			cols.program = i
		}
	}

	var missing []string
	if cols.firstName < 0 {
		missing = append(missing, "FirstName")
	}
	if cols.lastName < 0 {
		missing = append(missing, "LastName")
	}
	if cols.program < 0 {
		missing = append(missing, "Program")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

// normalize folds "First Name", "first_name" and "FirstName" together.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
