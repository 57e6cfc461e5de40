package source

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"ais_parser/internal/ais"
)

// CSVReader reads semicolon-separated AIS exports. Rows whose field count
// differs from the header carry only their raw fields.
type CSVReader struct {
	r       *csv.Reader
	indices map[ais.Column]int
	nCols   int
}

// NewCSVReader reads the header line and checks that every required column
// is present.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fileErrorf("empty file")
	}
	if err != nil {
		return nil, fileErrorf("read header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimRight(name, "\r\n")
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	indices := make(map[ais.Column]int, len(ais.CSVColumns))
	var missing []string
	for _, c := range ais.CSVColumns {
		i, ok := pos[string(c)]
		if !ok {
			missing = append(missing, string(c))
			continue
		}
		indices[c] = i
	}
	if len(missing) > 0 {
		return nil, fileErrorf("missing columns in file header: %s", strings.Join(missing, ", "))
	}

	return &CSVReader{r: cr, indices: indices, nCols: len(header)}, nil
}

// Next returns the next row.
func (c *CSVReader) Next() (ais.RawRecord, error) {
	row, err := c.r.Read()
	if errors.Is(err, io.EOF) {
		return ais.RawRecord{}, io.EOF
	}
	if err != nil {
		return ais.RawRecord{}, fileErrorf("read csv: %w", err)
	}

	rec := ais.RawRecord{Fields: make(map[ais.Column]string, len(c.indices)), Raw: row}
	if len(row) != c.nCols {
		return rec, nil
	}
	for col, i := range c.indices {
		rec.Fields[col] = row[i]
	}
	return rec, nil
}
