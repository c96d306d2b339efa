package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// TemplateFileName is the suggested download name for WriteTemplate output.
const TemplateFileName = "Template.xlsx"

const templateSheet = "Sheet1"

// templateColumnWidths line up with TemplateHeaders.
var templateColumnWidths = []float64{15, 10, 10, 30, 40, 10}

// ParseSpreadsheet reads the first sheet of an .xlsx/.xlsm workbook or a
// .csv file into header-keyed rows.
//
// The first non-empty row is the header. Blank header cells are skipped and
// a repeated header gets a "_1", "_2" suffix. Blank data cells are absent
// from the row, as are cells past the end of a short row.
func ParseSpreadsheet(fileName string, data []byte) ([]RawRow, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(data)
	case ".csv":
		records, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, err
	}

	rows := recordsToRows(records)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// readWorkbook returns raw cell values so date serials reach the date
// normalizer as numbers instead of locale-formatted text.
func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("read spreadsheet: %w", ErrEmptyFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: csv: %w", err)
	}
	return records, nil
}

func recordsToRows(records [][]string) []RawRow {
	headerAt := -1
	for i, rec := range records {
		if !isEmptyRecord(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil
	}

	header := make([]string, len(records[headerAt]))
	seen := make(map[string]int, len(header))
	for i, h := range records[headerAt] {
		h = CleanCell(h)
		if h == "" {
			continue
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = h + "_" + strconv.Itoa(n+1)
		} else {
			seen[h] = 0
		}
		header[i] = h
	}

	rows := make([]RawRow, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		if isEmptyRecord(rec) {
			continue
		}
		row := make(RawRow, len(rec))
		for i, cell := range rec {
			if i >= len(header) || header[i] == "" || strings.TrimSpace(cell) == "" {
				continue
			}
			row[header[i]] = cell
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// WriteTemplate writes the blank upload workbook: one header row on Sheet1.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]interface{}, len(TemplateHeaders))
	for i, h := range TemplateHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(templateSheet, "A1", &header); err != nil {
		return fmt.Errorf("write template header: %w", err)
	}

	for i, width := range templateColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("template column %d: %w", i+1, err)
		}
		if err := f.SetColWidth(templateSheet, col, col, width); err != nil {
			return fmt.Errorf("set template width %s: %w", col, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
