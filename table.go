// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gonum.org/v1/gonum/mat"
)

// matrix is a table of expression values with labeled rows and
// columns. Missing values are NaN.
type matrix struct {
	IndexLabel string
	Rows       []string
	Cols       []string
	// Data is nil if there are no rows or no columns.
	Data *mat.Dense
}

// newMatrix returns a matrix with the given labels, with every value
// missing.
func newMatrix(indexLabel string, rows, cols []string) *matrix {
	m := &matrix{IndexLabel: indexLabel, Rows: rows, Cols: cols}
	if len(rows) == 0 || len(cols) == 0 {
		return m
	}
	data := make([]float64, len(rows)*len(cols))
	for i := range data {
		data[i] = math.NaN()
	}
	m.Data = mat.NewDense(len(rows), len(cols), data)
	return m
}

func (m *matrix) At(row, col int) float64 {
	return m.Data.At(row, col)
}

func (m *matrix) Set(row, col int, v float64) {
	m.Data.Set(row, col, v)
}

// newTSVReader returns a csv.Reader configured for GEO's
// tab-separated files, which have ragged rows, stray quotes, and
// sometimes a leading byte order mark.
func newTSVReader(r io.Reader, delim rune) *csv.Reader {
	rdr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	rdr.Comma = delim
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	rdr.ReuseRecord = true
	return rdr
}

// parseValue parses a numeric table cell. NA tokens are returned as
// NaN.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isNA(s) {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// readMatrix reads a tab-separated matrix with a header row, whose
// first column is the row index. Rows shorter than the header are
// padded with missing values.
func readMatrix(r io.Reader, name string) (*matrix, error) {
	rdr := newTSVReader(r, '\t')
	header, err := rdr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w: no header row", name, ErrInputRead)
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
	}
	indexLabel := header[0]
	cols := append([]string(nil), header[1:]...)

	var rows []string
	var data []float64
	seen := map[string]bool{}
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		if len(rec) > len(cols)+1 {
			return nil, fmt.Errorf("%s: %w: line %d has %d fields, header has %d", name, ErrInputRead, line, len(rec), len(cols)+1)
		}
		id := rec[0]
		if seen[id] {
			return nil, fmt.Errorf("%s: %w: line %d: duplicate row %q", name, ErrInputRead, line, id)
		}
		seen[id] = true
		rows = append(rows, id)
		for col := range cols {
			if col+1 >= len(rec) {
				data = append(data, math.NaN())
				continue
			}
			v, ok := parseValue(rec[col+1])
			if !ok {
				return nil, fmt.Errorf("%s: %w: line %d: non-numeric value %q in column %q", name, ErrInputRead, line, rec[col+1], cols[col])
			}
			data = append(data, v)
		}
	}
	m := &matrix{IndexLabel: indexLabel, Rows: rows, Cols: cols}
	if len(rows) > 0 && len(cols) > 0 {
		m.Data = mat.NewDense(len(rows), len(cols), data)
	}
	return m, nil
}

// readTable reads a tab-separated table of strings with a header
// row, such as the output of parse-pheno.
func readTable(r io.Reader, name string) (header []string, rows [][]string, err error) {
	rdr := newTSVReader(r, '\t')
	rdr.ReuseRecord = false
	header, err = rdr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: %w: no header row", name, ErrInputRead)
	} else if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
	}
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, nil, fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

// writeMatrix writes m as a tab-separated table with a header row.
func writeMatrix(w io.Writer, m *matrix) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	rec := make([]string, len(m.Cols)+1)
	rec[0] = m.IndexLabel
	copy(rec[1:], m.Cols)
	if err := cw.Write(rec); err != nil {
		return err
	}
	for i, row := range m.Rows {
		rec[0] = row
		for j := range m.Cols {
			rec[j+1] = formatValue(m.At(i, j))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeTable writes a tab-separated table of strings with a header
// row.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
