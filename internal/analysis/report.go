// Package analysis summarizes a cleaned phenotype table as a markdown report.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
	"github.com/KaramelBytes/phenodash/internal/robust"
)

// Options controls report contents.
type Options struct {
	// SampleRows determines how many example rows to include in the report; 0 disables them.
	SampleRows int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// MaxGroups caps the per-genotype section; 0 means 20.
	MaxGroups int
}

// DefaultOptions returns reasonable defaults for a cleaned table.
func DefaultOptions() Options {
	return Options{SampleRows: 5, Correlations: true, MaxGroups: 20}
}

// Report is a markdown-friendly summary of a pipeline run.
type Report struct {
	Name     string
	RawRows  int
	Rows     int
	RunID    string
	Trace    []pipeline.StageResult
	Cols     []ColumnSummary
	Samples  []dataset.Row
	Warnings []string
	// Treatments holds per-label group sizes and metrics.
	Treatments []GroupResult
	// Genotypes holds per-genotype metrics, largest groups first.
	Genotypes []GroupResult
	Corr      *CorrMatrix

	columns []string
}

// ColumnSummary captures statistics per numeric column.
type ColumnSummary struct {
	Name    string
	NonNull int
	Missing int
	Min     float64
	Max     float64
	Mean    float64
	Std     float64
	// Residual outliers under the MAD-median rule; a clean table should have few.
	OutliersCount int
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary // by column name
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// PairCorr is a simple correlation pair summary.
type PairCorr struct {
	A, B string
	R    float64
}

// Summarize builds a report for res.
func Summarize(res *pipeline.Result, opt Options) *Report {
	t := res.Table
	rep := &Report{
		Name:    res.Source,
		RawRows: res.RawRows,
		Rows:    t.Len(),
		RunID:   res.RunID,
		Trace:   res.Trace,
		columns: t.Columns(),
	}
	sampleRows := opt.SampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	maxGroups := opt.MaxGroups
	if maxGroups <= 0 {
		maxGroups = 20
	}

	for _, name := range rep.columns {
		vals, _ := t.Column(name)
		rep.Cols = append(rep.Cols, summarizeColumn(name, vals))
	}
	for i := 0; i < t.Len() && i < sampleRows; i++ {
		rep.Samples = append(rep.Samples, t.Row(i))
	}

	rep.Treatments = groupBy(t, rep.columns, func(r dataset.Row) string {
		if r.Treatment == pipeline.MissingLabel {
			return "treatment=(unlabelled)"
		}
		return "treatment=" + r.Treatment
	})
	rep.Genotypes = groupBy(t, rep.columns, func(r dataset.Row) string { return "genotype=" + r.Genotype })
	if len(rep.Genotypes) > maxGroups {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("showing %d/%d genotypes", maxGroups, len(rep.Genotypes)))
		rep.Genotypes = rep.Genotypes[:maxGroups]
	}

	if opt.Correlations {
		rep.Corr = correlations(t, rep.Cols)
	}
	for _, m := range res.Missing {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %s absent from source; dependent stages skipped", m))
	}
	if t.Len() == 0 {
		rep.Warnings = append(rep.Warnings, "no rows survived cleaning")
	}
	return rep
}

func summarizeColumn(name string, vals []float64) ColumnSummary {
	s := ColumnSummary{Name: name}
	present := make([]float64, 0, len(vals))
	for _, v := range vals {
		if dataset.IsMissing(v) {
			s.Missing++
			continue
		}
		present = append(present, v)
	}
	s.NonNull = len(present)
	if len(present) == 0 {
		return s
	}
	s.Min, s.Max = present[0], present[0]
	for _, v := range present {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if len(present) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(present, nil)
	} else {
		s.Mean = present[0]
	}
	for _, out := range robust.MADMedianRule(present) {
		if out {
			s.OutliersCount++
		}
	}
	return s
}

func groupBy(t *dataset.Table, columns []string, key func(dataset.Row) string) []GroupResult {
	idx := map[string]*GroupResult{}
	var order []string
	for i, r := range t.Rows() {
		k := key(r)
		g := idx[k]
		if g == nil {
			g = &GroupResult{Key: k, Metrics: map[string]NumSummary{}}
			idx[k] = g
			order = append(order, k)
		}
		g.Size++
		for _, c := range columns {
			v := t.Value(i, c)
			if dataset.IsMissing(v) {
				continue
			}
			m, ok := g.Metrics[c]
			if !ok {
				m = NumSummary{Min: v, Max: v}
			}
			m.Mean = (m.Mean*float64(m.Count) + v) / float64(m.Count+1)
			m.Count++
			m.Min = math.Min(m.Min, v)
			m.Max = math.Max(m.Max, v)
			g.Metrics[c] = m
		}
	}
	out := make([]GroupResult, 0, len(order))
	for _, k := range order {
		out = append(out, *idx[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	return out
}

// correlations uses pairwise-complete observations per column pair.
func correlations(t *dataset.Table, cols []ColumnSummary) *CorrMatrix {
	var names []string
	for _, c := range cols {
		if c.NonNull >= 2 {
			names = append(names, c.Name)
		}
	}
	if len(names) < 2 {
		return nil
	}
	data := make([][]float64, len(names))
	for i, n := range names {
		data[i], _ = t.Column(n)
	}
	n := len(names)
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			var xs, ys []float64
			for k := range data[a] {
				x, y := data[a][k], data[b][k]
				if dataset.IsMissing(x) || dataset.IsMissing(y) {
					continue
				}
				xs = append(xs, x)
				ys = append(ys, y)
			}
			var r float64
			if len(xs) >= 2 {
				r = stat.Correlation(xs, ys, nil)
			}
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			mat[a][b], mat[b][a] = r, r
		}
	}
	return &CorrMatrix{Columns: names, Values: mat}
}

// TopPairs lists the strongest correlations by |r|.
func (m *CorrMatrix) TopPairs(limit int) []PairCorr {
	var pairs []PairCorr
	n := len(m.Columns)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// Markdown renders a compact report suitable for the terminal or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("Source: %s\n", r.Name))
	}
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))
	}
	b.WriteString(fmt.Sprintf("Rows: %d (raw %d)\n", r.Rows, r.RawRows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", len(r.Cols)))

	if len(r.Trace) > 0 {
		b.WriteString("\n[PIPELINE]\n")
		for _, s := range r.Trace {
			b.WriteString(fmt.Sprintf("- %s: %d -> %d", s.Name(), s.RowsIn, s.RowsOut))
			if s.Skipped {
				b.WriteString(" (skipped)")
			} else if s.Removed() > 0 {
				b.WriteString(fmt.Sprintf(" (removed %d)", s.Removed()))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: numeric (non-null %d, missing %.1f%%)", safeName(c.Name), c.NonNull, missPct))
		if c.NonNull > 0 {
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		}
		if c.OutliersCount > 0 {
			b.WriteString(fmt.Sprintf("; residual outliers: %d", c.OutliersCount))
		}
		b.WriteString("\n")
	}

	writeGroups := func(title string, groups []GroupResult) {
		if len(groups) == 0 {
			return
		}
		b.WriteString("\n" + title + "\n")
		for _, g := range groups {
			b.WriteString(fmt.Sprintf("- %s (n=%d)\n", safeVal(g.Key), g.Size))
			keys := make([]string, 0, len(g.Metrics))
			for k := range g.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			maxk := 6
			if len(keys) < maxk {
				maxk = len(keys)
			}
			for i := 0; i < maxk; i++ {
				m := g.Metrics[keys[i]]
				b.WriteString(fmt.Sprintf("  • %s: mean %.4g (min %.4g, max %.4g)\n", keys[i], m.Mean, m.Min, m.Max))
			}
		}
	}
	writeGroups("[GROUP-BY TREATMENT]", r.Treatments)
	writeGroups("[GROUP-BY GENOTYPE]", r.Genotypes)

	if r.Corr != nil {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Corr.TopPairs(10) {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		head := append([]string{dataset.ColGenotype, dataset.ColTreatment, dataset.ColDate}, r.columns...)
		b.WriteString("| " + strings.Join(head, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(head)) + "\n")
		for _, row := range r.Samples {
			cells := []string{safeVal(row.Genotype), safeVal(row.Treatment), formatDate(row)}
			for _, v := range row.Values {
				cells = append(cells, formatValue(v))
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatDate(r dataset.Row) string {
	if r.Date.IsZero() {
		return ""
	}
	return r.Date.Format(dataset.DateLayout)
}

func formatValue(v float64) string {
	if dataset.IsMissing(v) {
		return ""
	}
	return fmt.Sprintf("%.4g", v)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
