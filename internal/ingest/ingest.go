// Package ingest parses uploaded inventory files into columns and rows.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupported = errors.New("unsupported file format")
	ErrEmpty       = errors.New("file has no columns")
	ErrBadHeader   = errors.New("invalid header")
)

// Format is an upload format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Data is a parsed upload
type Data struct {
	Columns []string
	Rows    [][]string
}

// DetectFormat returns the format for a file name by extension
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "csv", "":
		return FormatCSV, nil
	case "tsv", "tab":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
}

// Parse reads an upload, choosing the format from name
func Parse(name string, r io.Reader) (*Data, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	return ParseFormat(format, r)
}

// ParseFormat reads an upload in the given format and normalizes it
func ParseFormat(format Format, r io.Reader) (*Data, error) {
	var (
		d   *Data
		err error
	)
	switch format {
	case FormatCSV:
		d, err = parseDelimited(r, ',')
	case FormatTSV:
		d, err = parseDelimited(r, '\t')
	case FormatJSON:
		d, err = parseJSON(r)
	case FormatXLSX:
		d, err = parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return nil, err
	}
	if err := normalize(d); err != nil {
		return nil, err
	}
	return d, nil
}

func parseDelimited(r io.Reader, comma rune) (*Data, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var d *Data
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse file: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if d == nil {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			d = &Data{Columns: rec}
			continue
		}
		row, err := fitRow(d.Columns, rec, line)
		if err != nil {
			return nil, err
		}
		if row != nil {
			d.Rows = append(d.Rows, row)
		}
	}
	if d == nil {
		return nil, ErrEmpty
	}
	return d, nil
}

// parseXLSX reads the first worksheet; its first row is the header
func parseXLSX(r io.Reader) (*Data, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}

	d := &Data{Columns: rows[0]}
	for i, rec := range rows[1:] {
		row, err := fitRow(d.Columns, rec, i+2)
		if err != nil {
			return nil, err
		}
		if row != nil {
			d.Rows = append(d.Rows, row)
		}
	}
	return d, nil
}

// fitRow pads rec to the header width. Blank records yield nil; records
// with more fields than the header are rejected.
func fitRow(header, rec []string, line int) ([]string, error) {
	if isBlank(rec) {
		return nil, nil
	}
	if len(rec) > len(header) {
		return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
			ErrBadHeader, line, len(rec), len(header))
	}
	row := make([]string, len(header))
	copy(row, rec)
	return row, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseJSON reads an array of objects. Columns are ordered by first
// appearance across the objects.
func parseJSON(r io.Reader) (*Data, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("failed to parse json: expected an array of objects")
	}

	d := &Data{}
	index := map[string]int{}
	var objects [][]keyValue
	for dec.More() {
		obj, err := readObject(dec)
		if err != nil {
			return nil, err
		}
		for _, kv := range obj {
			if _, ok := index[kv.key]; !ok {
				index[kv.key] = len(d.Columns)
				d.Columns = append(d.Columns, kv.key)
			}
		}
		objects = append(objects, obj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	if len(d.Columns) == 0 {
		return nil, ErrEmpty
	}

	for _, obj := range objects {
		row := make([]string, len(d.Columns))
		for _, kv := range obj {
			row[index[kv.key]] = kv.value
		}
		d.Rows = append(d.Rows, row)
	}
	return d, nil
}

type keyValue struct {
	key   string
	value string
}

// readObject decodes one object keeping key order
func readObject(dec *json.Decoder) ([]keyValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("failed to parse json: expected an object")
	}

	var obj []keyValue
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		obj = append(obj, keyValue{key: key, value: rawString(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	return obj, nil
}

// rawString renders a JSON value as cell text. Nested values keep their
// JSON encoding.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		if b, err := strconv.ParseBool(string(raw)); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return string(raw)
}

// normalize trims headers, renames Asset_ID to equipment_id when no
// equipment_id column exists, and trims equipment id values
func normalize(d *Data) error {
	seen := map[string]bool{}
	for i, c := range d.Columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return fmt.Errorf("%w: column %d has no name", ErrBadHeader, i+1)
		}
		key := strings.ToLower(c)
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q", ErrBadHeader, c)
		}
		seen[key] = true
		d.Columns[i] = c
	}

	if !seen["equipment_id"] {
		for i, c := range d.Columns {
			if c == "Asset_ID" {
				d.Columns[i] = "equipment_id"
				break
			}
		}
	}

	for i, c := range d.Columns {
		switch strings.ToLower(c) {
		case "equipment_id", "asset_id":
			for _, row := range d.Rows {
				row[i] = strings.TrimSpace(row[i])
			}
		}
	}
	return nil
}
