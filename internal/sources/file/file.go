// Package file reads scheme records from a CSV file or an Excel workbook.
package file

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"schememap/internal/core"
	"schememap/internal/sources"
)

// ErrUnsupportedFormat is returned for paths that are neither .csv nor .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported scheme file format")

// Source reads the scheme table from disk on every ReadSchemes call.
type Source struct {
	path  string
	sheet string
}

var _ sources.SchemeReader = (*Source)(nil)

// New returns a Source for path. sheet selects the workbook tab for .xlsx
// files; empty means the first sheet.
func New(path, sheet string) *Source {
	return &Source{path: path, sheet: sheet}
}

// Name identifies the source in logs and dataset metadata.
func (s *Source) Name() string {
	return "file:" + filepath.Base(s.path)
}

func (s *Source) ReadSchemes(ctx context.Context) ([]core.SchemeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".csv":
		rows, err = readCSV(s.path)
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(s.path, s.sheet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.path)
	}
	if err != nil {
		return nil, err
	}
	recs, err := sources.Records(rows)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return recs, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads every row of a CSV stream. Rows may have differing widths.
func ParseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func readWorkbook(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// WriteWorkbook saves records as a single-sheet workbook with the canonical
// header. Used by schemectl to export the current table.
func WriteWorkbook(path, sheet string, records []core.SchemeRecord) error {
	f := excelize.NewFile()
	defer f.Close()
	if sheet == "" {
		sheet = "Schemes"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, header := range sources.Columns() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, r := range records {
		row := sources.Row(r)
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
