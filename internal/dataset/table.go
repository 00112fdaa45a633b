// Package dataset holds the typed phenotype table and the loader that fills it
// from a CSV source.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Key columns every source must carry.
const (
	ColGenotype  = "genotype"
	ColTreatment = "treatment"
	ColDate      = "date"
)

// Phenotype columns the pipeline reads.
const (
	ColFvFm         = "FV/FM"
	ColBoundingArea = "bounding_area_m2"
	ColOrientedBox  = "oriented_bounding_box"
	ColCanopyTemp   = "median"
	ColMaxZ         = "max_z"
	ColMinZ         = "min_z"
	ColHeight       = "height"
)

// DateLayout is the canonical rendering of a calendar date.
const DateLayout = "2006-01-02"

// KeyColumns returns the grouping key columns in key order.
func KeyColumns() []string { return []string{ColGenotype, ColTreatment, ColDate} }

// PhenotypeColumns returns the numeric columns a complete source provides.
func PhenotypeColumns() []string {
	return []string{ColFvFm, ColBoundingArea, ColOrientedBox, ColCanopyTemp, ColMaxZ, ColMinZ}
}

// Missing returns the marker for an absent numeric value.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v marks an absent numeric value.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Row is one measurement. Values is aligned with the owning table's columns.
// Rows are treated as immutable once they are part of a table; stages that
// change a row build a new one.
type Row struct {
	Genotype  string
	Treatment string
	Date      time.Time
	Values    []float64
}

// HasKey reports whether all grouping key fields are present.
func (r Row) HasKey() bool {
	return r.Genotype != "" && r.Treatment != "" && !r.Date.IsZero()
}

// Table is an in-memory phenotype table: three typed key columns plus named
// float64 columns.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New builds a table, validating column names and row widths.
func New(columns []string, rows []Row) (*Table, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		if c == ColGenotype || c == ColTreatment || c == ColDate {
			return nil, fmt.Errorf("column %q is a key column", c)
		}
		if _, dup := idx[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		idx[c] = i
	}
	for i, r := range rows {
		if len(r.Values) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i+1, len(r.Values), len(columns))
		}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	rs := make([]Row, len(rows))
	copy(rs, rows)
	return &Table{columns: cols, index: idx, rows: rs}, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(columns []string, rows []Row) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns a copy of the numeric column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns a shallow copy of the rows.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Row returns row i.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Has reports whether the named numeric column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Index returns the position of the named numeric column.
func (t *Table) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Value returns the named value of row i, or Missing when the column is absent.
func (t *Table) Value(i int, name string) float64 {
	j, ok := t.index[name]
	if !ok {
		return Missing()
	}
	return t.rows[i].Values[j]
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, &MissingColumnError{Column: name}
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Values[j]
	}
	return out, nil
}

// Filter returns a new table holding the rows for which keep is true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	rows := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Mask returns a new table holding the rows whose mask entry is false.
func (t *Table) Mask(drop []bool) (*Table, error) {
	if len(drop) != len(t.rows) {
		return nil, fmt.Errorf("mask has %d entries, table has %d rows", len(drop), len(t.rows))
	}
	rows := make([]Row, 0, len(t.rows))
	for i, r := range t.rows {
		if !drop[i] {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}, nil
}

// MapKeys returns a new table whose key fields are rewritten by fn. Values are shared.
func (t *Table) MapKeys(fn func(Row) Row) *Table {
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := fn(r)
		nr.Values = r.Values
		rows[i] = nr
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// WithColumn returns a new table with the named column set to fn(row).
// An existing column of the same name is replaced.
func (t *Table) WithColumn(name string, fn func(Row) float64) *Table {
	cols := t.columns
	index := t.index
	j, ok := t.index[name]
	if !ok {
		cols = make([]string, len(t.columns), len(t.columns)+1)
		copy(cols, t.columns)
		cols = append(cols, name)
		index = make(map[string]int, len(cols))
		for i, c := range cols {
			index[c] = i
		}
		j = len(cols) - 1
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		vals := make([]float64, len(cols))
		copy(vals, r.Values)
		vals[j] = fn(r)
		nr := r
		nr.Values = vals
		rows[i] = nr
	}
	return &Table{columns: cols, index: index, rows: rows}
}

// Sorted returns a copy ordered by genotype, treatment and date.
func (t *Table) Sorted() *Table {
	rows := t.Rows()
	sort.SliceStable(rows, func(i, j int) bool { return lessKey(rows[i], rows[j]) })
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

func lessKey(a, b Row) bool {
	if a.Genotype != b.Genotype {
		return a.Genotype < b.Genotype
	}
	if a.Treatment != b.Treatment {
		return a.Treatment < b.Treatment
	}
	return a.Date.Before(b.Date)
}

// Genotypes returns the distinct genotypes in sorted order.
func (t *Table) Genotypes() []string {
	return distinct(t.rows, func(r Row) string { return r.Genotype })
}

// Treatments returns the distinct non-empty treatments in sorted order.
func (t *Table) Treatments() []string {
	return distinct(t.rows, func(r Row) string { return r.Treatment })
}

func distinct(rows []Row, key func(Row) string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range rows {
		k := key(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
