// Package spreadsheet parses seller-submitted workbooks into header-keyed rows.
//
// Two input formats are accepted:
//   - XLSX workbooks (detected by the zip signature), read with excelize. The
//     first worksheet is used and per-cell number formats are retained.
//   - Delimited text (CSV). A UTF-8 BOM is stripped and invalid UTF-8 is
//     replaced rather than rejected. CSV cells carry no number format.
//
// The first row is always the header row. Blank rows are skipped, but row
// indexes keep counting so that messages point at the row a seller sees.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var zipMagic = []byte("PK\x03\x04")

// EmptyInputError is returned when the input has no bytes, no header row, or
// no data rows.
type EmptyInputError struct {
	Reason string
}

func (e *EmptyInputError) Error() string {
	return "spreadsheet is empty: " + e.Reason
}

// ParseError is returned when the bytes cannot be read as a workbook.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsInputError reports whether err came from unusable input bytes.
func IsInputError(err error) bool {
	var empty *EmptyInputError
	var parse *ParseError
	return errors.As(err, &empty) || errors.As(err, &parse)
}

// Row is one data row. Index is 1-based and excludes the header row, so the
// first data row has Index 1 whatever blank rows surround it.
type Row struct {
	Index  int
	Values map[string]string
}

// Get returns the value of column, matching the header case-insensitively.
// Missing columns read as "".
func (r Row) Get(column string) string {
	if v, ok := r.Values[column]; ok {
		return v
	}
	for k, v := range r.Values {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return ""
}

// Has reports whether column is present in the row with a non-blank value.
func (r Row) Has(column string) bool {
	return strings.TrimSpace(r.Get(column)) != ""
}

// Sheet gives access to per-cell formatting that is not part of a row's
// values. row is a Row.Index; col is the 0-based column position from the
// HeaderIndex.
type Sheet interface {
	NumberFormat(row, col int) string
	DisplayText(row, col int) string
}

// Result is a parsed workbook.
type Result struct {
	Headers []string
	Rows    []Row
	Sheet   Sheet
	Index   HeaderIndex
}

// HeaderIndex maps lowercased, cleaned header names to column positions.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row. When a header
// repeats, the first occurrence wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Lookup returns the position of column.
func (h HeaderIndex) Lookup(column string) (int, bool) {
	i, ok := h[strings.ToLower(strings.TrimSpace(column))]
	return i, ok
}

// Missing returns the names in required that are absent, in the order given.
func (h HeaderIndex) Missing(required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := h.Lookup(col); !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// Read parses data as XLSX when it carries the zip signature and as CSV
// otherwise.
func Read(data []byte) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &EmptyInputError{Reason: "no data"}
	}
	if bytes.HasPrefix(data, zipMagic) {
		return readXLSX(data)
	}
	return readCSV(data)
}

// build turns a header row and the records below it into a Result.
func build(records [][]string, sheet Sheet) (*Result, error) {
	if len(records) == 0 || isEmptyRow(records[0]) {
		return nil, &EmptyInputError{Reason: "no header row"}
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = CleanCell(h)
	}

	res := &Result{
		Headers: headers,
		Sheet:   sheet,
		Index:   MakeHeaderIndex(headers),
	}

	for i, record := range records[1:] {
		if isEmptyRow(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for col, h := range headers {
			if h == "" {
				continue
			}
			if _, seen := values[h]; seen {
				continue
			}
			if col < len(record) {
				values[h] = strings.TrimSpace(record[col])
			} else {
				values[h] = ""
			}
		}
		res.Rows = append(res.Rows, Row{Index: i + 1, Values: values})
	}

	if len(res.Rows) == 0 {
		return nil, &EmptyInputError{Reason: "no data rows below the header"}
	}
	return res, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
