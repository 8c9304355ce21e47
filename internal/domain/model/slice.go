// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"
)

// MetricDataColumn is the column name under which per-slice metric values
// are exposed to summary statistics.
const MetricDataColumn = "metricdata"

// DataSlice is a column-oriented set of visit rows. All columns have the
// same length. A DataSlice is not modified after construction.
type DataSlice struct {
	columns map[string][]float64
	n       int
}

// NewDataSlice builds a DataSlice from a column map. The map is copied; the
// column slices are shared and must not be written to afterwards.
func NewDataSlice(columns map[string][]float64) (DataSlice, error) {
	s := DataSlice{columns: make(map[string][]float64, len(columns)), n: -1}
	for name, values := range columns {
		if s.n >= 0 && len(values) != s.n {
			return DataSlice{}, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrColumnLength, name, len(values), s.n)
		}
		s.n = len(values)
		s.columns[name] = values
	}
	if s.n < 0 {
		s.n = 0
	}
	return s, nil
}

// SingleColumn wraps one column into a DataSlice.
func SingleColumn(name string, values []float64) DataSlice {
	return DataSlice{columns: map[string][]float64{name: values}, n: len(values)}
}

// Len returns the number of rows.
func (s DataSlice) Len() int { return s.n }

// Column returns the values of the named column.
func (s DataSlice) Column(name string) ([]float64, error) {
	values, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return values, nil
}

// Has reports whether the column exists.
func (s DataSlice) Has(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Names returns the column names in sorted order.
func (s DataSlice) Names() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Rows returns a new DataSlice holding the given rows, in the given order.
func (s DataSlice) Rows(idx []int) DataSlice {
	out := DataSlice{columns: make(map[string][]float64, len(s.columns)), n: len(idx)}
	for name, values := range s.columns {
		sub := make([]float64, len(idx))
		for i, j := range idx {
			sub[i] = values[j]
		}
		out.columns[name] = sub
	}
	return out
}

// Slice is one spatial cell of a slicer: the pixel it covers and the visits
// that fall in it.
type Slice struct {
	PixelID int64
	Data    DataSlice
}

// MaskedColumn pairs values with a mask; true marks a masked (invalid) entry.
type MaskedColumn struct {
	Values []float64
	Mask   []bool
}

// Compressed returns the unmasked values. A nil or short mask leaves the
// remaining entries unmasked.
func (m MaskedColumn) Compressed() []float64 {
	out := make([]float64, 0, len(m.Values))
	for i, v := range m.Values {
		if i < len(m.Mask) && m.Mask[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}
