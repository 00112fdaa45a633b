package analysis

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/pipeline"
)

func fixture(t *testing.T) *pipeline.Result {
	t.Helper()
	d := func(day int) time.Time { return time.Date(2020, 2, day, 0, 0, 0, 0, time.UTC) }
	cols := []string{dataset.ColFvFm, dataset.ColHeight}
	rows := []dataset.Row{
		{Genotype: "Aido", Treatment: "Well Watered", Date: d(1), Values: []float64{0.80, 0.10}},
		{Genotype: "Aido", Treatment: "Water Limited", Date: d(1), Values: []float64{0.78, 0.08}},
		{Genotype: "Iceberg", Treatment: "Well Watered", Date: d(1), Values: []float64{0.82, 0.12}},
		{Genotype: "Iceberg", Treatment: "Well Watered", Date: d(2), Values: []float64{0.84, math.NaN()}},
		{Genotype: "Xanadu", Treatment: "", Date: d(2), Values: []float64{0.79, 0.09}},
	}
	tbl, err := dataset.New(cols, rows)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return &pipeline.Result{
		RunID:   "run-42",
		Source:  "season10.csv",
		RawRows: 12,
		Table:   tbl,
		Trace: []pipeline.StageResult{
			{Stage: pipeline.StageGroup, RowsIn: 12, RowsOut: 6},
			{Stage: pipeline.StageOutliers, Column: dataset.ColFvFm, RowsIn: 6, RowsOut: 5},
			{Stage: pipeline.StageOutliers, Column: dataset.ColOrientedBox, RowsIn: 5, RowsOut: 5, Skipped: true},
		},
		Missing: []string{dataset.ColOrientedBox},
	}
}

func TestSummarizeStats(t *testing.T) {
	rep := Summarize(fixture(t), DefaultOptions())
	if rep.Rows != 5 || rep.RawRows != 12 {
		t.Fatalf("rows = %d raw = %d", rep.Rows, rep.RawRows)
	}
	if len(rep.Cols) != 2 {
		t.Fatalf("cols = %#v", rep.Cols)
	}
	h := rep.Cols[1]
	if h.Name != dataset.ColHeight || h.NonNull != 4 || h.Missing != 1 {
		t.Fatalf("height summary = %#v", h)
	}
	if !almostEqual(h.Mean, 0.0975, 1e-12) || h.Min != 0.08 || h.Max != 0.12 {
		t.Fatalf("height stats = %#v", h)
	}
	if len(rep.Treatments) != 3 || rep.Treatments[0].Key != "treatment=Well Watered" || rep.Treatments[0].Size != 3 {
		t.Fatalf("treatments = %#v", rep.Treatments)
	}
	ww := rep.Treatments[0].Metrics[dataset.ColHeight]
	if ww.Count != 2 || !almostEqual(ww.Mean, 0.11, 1e-12) {
		t.Fatalf("well watered height = %#v", ww)
	}
	if rep.Genotypes[0].Key != "genotype=Aido" || rep.Genotypes[0].Size != 2 {
		t.Fatalf("genotypes = %#v", rep.Genotypes)
	}
	if rep.Corr == nil || rep.Corr.Values[0][1] <= 0.9 {
		t.Fatalf("expected strong positive correlation, got %#v", rep.Corr)
	}
	if len(rep.Samples) != 5 {
		t.Fatalf("samples = %d", len(rep.Samples))
	}
}

func TestMarkdownSections(t *testing.T) {
	md := Summarize(fixture(t), Options{SampleRows: 2, Correlations: true}).Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"Source: season10.csv",
		"Rows: 5 (raw 12)",
		"[PIPELINE]",
		"- group: 12 -> 6 (removed 6)",
		"- outliers:oriented_bounding_box: 5 -> 5 (skipped)",
		"[SCHEMA]",
		"- height: numeric (non-null 4, missing 20.0%)",
		"[GROUP-BY TREATMENT]",
		"treatment=(unlabelled) (n=1)",
		"[GROUP-BY GENOTYPE]",
		"[CORRELATIONS]",
		"- FV/FM ~ height: r=",
		"| genotype | treatment | date | FV/FM | height |",
		"| Aido | Well Watered | 2020-02-01 | 0.8 | 0.1 |",
		"[NOTES]",
		"column oriented_bounding_box absent from source",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Count(md, "| Iceberg |") != 0 {
		t.Fatalf("sample rows should stop at 2:\n%s", md)
	}
}

func TestSummarizeEmptyTable(t *testing.T) {
	res := fixture(t)
	res.Table = dataset.MustNew([]string{dataset.ColFvFm}, nil)
	rep := Summarize(res, DefaultOptions())
	if rep.Corr != nil {
		t.Fatalf("corr on empty table = %#v", rep.Corr)
	}
	md := rep.Markdown()
	if !strings.Contains(md, "no rows survived cleaning") {
		t.Fatalf("missing empty note:\n%s", md)
	}
}

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }
