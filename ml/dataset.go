package ml

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// DatasetOptions configure how a delimited training file is read. Registry
// exports vary: the reference dataset uses ';' with dot decimals, but both
// are configuration, not assumptions.
type DatasetOptions struct {
	// Delimiter between cells; ';' when zero.
	Delimiter rune
	// Decimal is the decimal separator, '.' when zero. With ',' numeric
	// cells are rewritten before coercion.
	Decimal rune
	// LabelColumn names the class column; "Label" when empty.
	LabelColumn string
	// Encoding of the file: "", "utf-8", "windows-1252" or "latin-1".
	// Spreadsheet exports are not reliably UTF-8.
	Encoding string
}

func (o DatasetOptions) withDefaults() DatasetOptions {
	if o.Delimiter == 0 {
		o.Delimiter = ';'
	}
	if o.Decimal == 0 {
		o.Decimal = '.'
	}
	if o.LabelColumn == "" {
		o.LabelColumn = "Label"
	}
	return o
}

// Dataset is a loaded labeled training table. Rows are keyed by schema
// feature name, ready for the shared encoder.
type Dataset struct {
	Rows   []Submission
	Labels []string
}

// LoadDataset reads a delimited file against the schema. The header row is
// detected by content: a first row containing the label column name or any
// schema column alias is a header. Headerless files are read positionally,
// schema order first and the label last. Every schema-declared column must
// be present; missing ones abort with the full list rather than silently
// training on a smaller feature set.
func LoadDataset(path string, schema FeatureSchema, opts DatasetOptions) (*Dataset, error) {
	opts = opts.withDefaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := decodeReader(file, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(reader)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no data in %s", path)
	}

	var columnIndex map[string]int // schema name -> cell index
	var labelIdx int
	start := 0
	if isHeaderRow(records[0], schema, opts.LabelColumn) {
		columnIndex, labelIdx, err = mapHeader(records[0], schema, opts.LabelColumn)
		if err != nil {
			return nil, err
		}
		start = 1
	} else {
		columnIndex = make(map[string]int, len(schema))
		for i, spec := range schema {
			columnIndex[spec.Name] = i
		}
		labelIdx = len(schema)
	}

	ds := &Dataset{}
	for rowNum, record := range records[start:] {
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if labelIdx >= len(record) {
			return nil, fmt.Errorf("row %d has %d cells, label expected at %d", start+rowNum+1, len(record), labelIdx+1)
		}
		label := cleanCell(record[labelIdx])
		if label == "" {
			return nil, fmt.Errorf("row %d has empty label", start+rowNum+1)
		}

		sub := make(Submission, len(schema))
		for _, spec := range schema {
			idx := columnIndex[spec.Name]
			if idx >= len(record) {
				continue // short row: field stays absent and gets defaulted
			}
			cell := cleanCell(record[idx])
			if spec.Kind == Numeric && opts.Decimal == ',' {
				cell = strings.ReplaceAll(cell, ",", ".")
			}
			sub[spec.Name] = cell
		}
		ds.Rows = append(ds.Rows, sub)
		ds.Labels = append(ds.Labels, label)
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("no labeled rows in %s", path)
	}
	return ds, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return r, nil
	case "windows-1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case "latin-1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported dataset encoding %q", encoding)
	}
}

// isHeaderRow sniffs headers by content rather than assuming a fixed
// layout.
func isHeaderRow(record []string, schema FeatureSchema, labelColumn string) bool {
	known := make(map[string]bool, len(schema)*2+1)
	known[labelColumn] = true
	for _, spec := range schema {
		known[spec.DatasetColumn()] = true
		known[spec.Name] = true
	}
	for _, cell := range record {
		if known[cleanCell(cell)] {
			return true
		}
	}
	return false
}

func mapHeader(header []string, schema FeatureSchema, labelColumn string) (map[string]int, int, error) {
	position := make(map[string]int, len(header))
	for i, cell := range header {
		position[cleanCell(cell)] = i
	}

	labelIdx, ok := position[labelColumn]
	if !ok {
		return nil, 0, fmt.Errorf("label column %q not found in header", labelColumn)
	}

	columnIndex := make(map[string]int, len(schema))
	var missing []string
	for _, spec := range schema {
		if idx, ok := position[spec.DatasetColumn()]; ok {
			columnIndex[spec.Name] = idx
			continue
		}
		if idx, ok := position[spec.Name]; ok {
			columnIndex[spec.Name] = idx
			continue
		}
		missing = append(missing, spec.DatasetColumn())
	}
	if len(missing) > 0 {
		return nil, 0, &MissingColumnsError{Columns: missing}
	}
	return columnIndex, labelIdx, nil
}
