package pipeline

import (
	"math"
	"sort"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/robust"
)

type groupKey struct {
	genotype  string
	treatment string
	day       int64
}

// GroupMedians reduces t to one row per (genotype, treatment, date), each
// numeric column holding the median of the group's non-missing values (missing
// when the group has none). Rows lacking any key field are dropped. Output rows
// are ordered by key.
func GroupMedians(t *dataset.Table) *dataset.Table {
	cols := t.Columns()
	type acc struct {
		row  dataset.Row
		vals [][]float64
	}
	groups := map[groupKey]*acc{}
	for _, r := range t.Rows() {
		if !r.HasKey() {
			continue
		}
		k := groupKey{r.Genotype, r.Treatment, r.Date.Unix()}
		g := groups[k]
		if g == nil {
			g = &acc{
				row:  dataset.Row{Genotype: r.Genotype, Treatment: r.Treatment, Date: r.Date},
				vals: make([][]float64, len(cols)),
			}
			groups[k] = g
		}
		for j, v := range r.Values {
			if !math.IsNaN(v) {
				g.vals[j] = append(g.vals[j], v)
			}
		}
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.genotype != b.genotype {
			return a.genotype < b.genotype
		}
		if a.treatment != b.treatment {
			return a.treatment < b.treatment
		}
		return a.day < b.day
	})
	rows := make([]dataset.Row, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		row := g.row
		row.Values = make([]float64, len(cols))
		for j := range cols {
			m, ok := robust.Median(g.vals[j])
			if !ok {
				m = dataset.Missing()
			}
			row.Values[j] = m
		}
		rows = append(rows, row)
	}
	return dataset.MustNew(cols, rows)
}
