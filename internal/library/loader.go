package library

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoColumns is returned when a library file has none of the ISRC, Artist,
// or Title columns.
var ErrNoColumns = errors.New("library has no recognizable columns")

// Load reads a station library file into records. The format is chosen by
// extension: .xlsx reads the first sheet, anything else is parsed as CSV.
func Load(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path)
	default:
		f, err := os.Open(path) //nolint:gosec // G304: path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("opening library: %w", err)
		}
		defer f.Close() //nolint:errcheck
		return ParseCSV(f)
	}
}

// ParseCSV reads CSV library rows from r. The first row is the header.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return fromRows(rows)
}

func loadXLSX(path string) ([]Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

// fromRows converts a header row plus data rows into records. Cells missing
// from short rows are treated as empty. Canonical columns are resolved once
// from the header row.
func fromRows(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	cols := resolveColumns(headers)
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}

	var records []Record
	for _, row := range rows[1:] {
		fields := make(map[string]string, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var val string
			if i < len(row) {
				val = strings.TrimSpace(row[i])
			}
			if val != "" {
				empty = false
			}
			fields[h] = val
		}
		if empty {
			continue
		}
		records = append(records, Record{
			ISRC:   cols.value(fields, ColumnISRC),
			Artist: cols.value(fields, ColumnArtist),
			Title:  cols.value(fields, ColumnTitle),
			Fields: fields,
		})
	}
	return records, nil
}
