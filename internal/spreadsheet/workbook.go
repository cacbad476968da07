// Package spreadsheet converts between xlsx workbooks and record rows.
package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/record"
)

// ReportSheet is the sheet name used for generated workbooks.
const ReportSheet = "Sheet1"

// Sheet is the parsed content of a workbook's first sheet.
type Sheet struct {
	Header []string
	Rows   []*record.Row
}

// Parse reads the first sheet of an xlsx workbook. The first line is the
// header; empty cells are omitted and lines without any cell are dropped.
// A header without an identity column (handle or email) is rejected.
func Parse(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("workbook has no sheets")
	}

	lines, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("read sheet %q: %v", sheets[0], err)
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("sheet %q is empty", sheets[0])
	}

	header := make([]string, len(lines[0]))
	for i, name := range lines[0] {
		header[i] = strings.TrimSpace(name)
	}
	if !contains(header, record.ColHandle) && !contains(header, record.ColEmail) {
		return nil, apperr.Validation("require a %q or %q column, but actual columns are %v",
			record.ColHandle, record.ColEmail, header)
	}

	sheet := &Sheet{Header: header}
	for i, line := range lines[1:] {
		cells := make(map[string]string, len(line))
		for j, value := range line {
			if j >= len(header) || header[j] == "" {
				continue
			}
			if strings.TrimSpace(value) == "" {
				continue
			}
			cells[header[j]] = value
		}
		if len(cells) == 0 {
			continue
		}
		// Data starts on the second sheet line.
		sheet.Rows = append(sheet.Rows, record.New(i+2, cells))
	}
	return sheet, nil
}

// Write renders a header and rows of values into a single-sheet workbook.
func Write(header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("spreadsheet: write header: %w", err)
	}
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("spreadsheet: row %d: %w", i+2, err)
		}
		values := values
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("spreadsheet: write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
