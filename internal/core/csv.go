package core

// csv.go turns uploaded CSV bytes into RawRows.
//
// The first row is the header; each data row becomes one RawRow keyed by the
// header names. Real-world exports arrive with broken UTF-8, ragged column
// counts, Excel formula prefixes, and blank padding rows, all of which are
// tolerated here rather than failing the file.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the maximum accepted CSV upload (20MB). A paced batch of
// anything larger would run for hours anyway.
var MaxFileSize int64 = 20 * 1024 * 1024

// ParseRows parses CSV bytes into ordered RawRows. The header row supplies
// the field names; blank rows are skipped; rows shorter than the header get
// the missing fields as empty (i.e. not supplied).
func ParseRows(data []byte) ([]RawRow, error) {
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(CleanCell(h))
	}

	rows := make([]RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRecord(rec) {
			continue
		}
		row := make(RawRow, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(rec) {
				row[name] = CleanCell(rec[i])
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows after header")
	}
	return rows, nil
}

// CleanCell removes common CSV artifacts from a cell value:
//   - Trims whitespace
//   - Removes Excel formula prefix (="...")
//   - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return s
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// downstream JSON encoding never chokes on a half-broken export.
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

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
