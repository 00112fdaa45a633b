package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/phenodash/internal/dataset"
)

var allCols = []string{
	dataset.ColFvFm, dataset.ColBoundingArea, dataset.ColOrientedBox,
	dataset.ColCanopyTemp, dataset.ColMaxZ, dataset.ColMinZ,
}

func day(s string) time.Time {
	d, err := time.Parse(dataset.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func row(genotype, treatment, date string, vals ...float64) dataset.Row {
	return dataset.Row{Genotype: genotype, Treatment: treatment, Date: day(date), Values: vals}
}

// orderFixture has one raw row per key, so grouping keeps every row. Under
// the fixed outlier order six rows survive; the reverse order keeps two.
func orderFixture() *dataset.Table {
	fv := []float64{0.80, 0.81, 0.79, 0.80, 0.82, 0.78, 0.80, 0.60}
	ba := []float64{1.0, 1.1, 0.9, 1.0, 1.05, 0.95, 1.6, 1.0}
	ob := []float64{2.0, 2.1, 1.9, 2.0, 2.05, 1.95, 2.0, 2.0}
	med := []float64{30, 31, 29, 30, 30.5, 29.5, 30, 30}
	var rows []dataset.Row
	for i := range fv {
		g := string(rune('A' + i))
		rows = append(rows, row("geno"+g, "treatment 1", "2020-03-01", fv[i], ba[i], ob[i], med[i], 0.3+float64(i)/100, 0.1))
	}
	return dataset.MustNew(allCols, rows)
}

func genotypes(t *dataset.Table) []string {
	var out []string
	for _, r := range t.Rows() {
		out = append(out, r.Genotype)
	}
	return out
}

func TestCleanExampleScenario(t *testing.T) {
	raw := dataset.MustNew(allCols, []dataset.Row{
		row("genoA", "treatment 1", "2020-01-01", 0.7, 1, 2, 30, 10, 0),
		row("genoA", "treatment 1", "2020-01-01", 0.71, 1, 2, 30, 9, 1),
	})
	res, err := Clean(raw, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())

	assert.InDelta(t, 0.705, res.Table.Value(0, dataset.ColFvFm), 1e-12)
	// median(max_z) - median(min_z) = 9.5 - 0.5
	assert.InDelta(t, 9.0, res.Table.Value(0, dataset.ColHeight), 1e-12)
	r := res.Table.Row(0)
	assert.Equal(t, "genoA", r.Genotype)
	assert.Equal(t, "Well Watered", r.Treatment)
	assert.Equal(t, day("2020-01-01"), r.Date)
	assert.Equal(t, 2, res.RawRows)
	assert.NotEmpty(t, res.RunID)
}

func TestGroupMediansOneRowPerKey(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("g1", "treatment 1", "2020-01-02", 3),
		row("g1", "treatment 1", "2020-01-02", 1),
		row("g1", "treatment 1", "2020-01-02", 2),
		row("g1", "treatment 1", "2020-01-01", 5),
		row("g1", "treatment 3", "2020-01-01", math.NaN()),
		row("g1", "treatment 3", "2020-01-01", 7),
		{Genotype: "g2", Treatment: "treatment 1", Values: []float64{9}},
	})
	got := GroupMedians(raw)
	require.Equal(t, 3, got.Len())

	seen := map[string]bool{}
	for _, r := range got.Rows() {
		k := r.Genotype + "|" + r.Treatment + "|" + r.Date.Format(dataset.DateLayout)
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Equal(t, day("2020-01-01"), got.Row(0).Date)
	assert.Equal(t, 5.0, got.Value(0, "x"))
	assert.Equal(t, 2.0, got.Value(1, "x"))
	assert.Equal(t, 7.0, got.Value(2, "x"))
}

func TestGroupMediansAllMissingStaysMissing(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("g1", "treatment 1", "2020-01-02", math.NaN()),
		row("g1", "treatment 1", "2020-01-02", math.NaN()),
	})
	got := GroupMedians(raw)
	require.Equal(t, 1, got.Len())
	assert.True(t, dataset.IsMissing(got.Value(0, "x")))
}

func TestLabelTreatmentsUnmappedIsMissing(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("g", "treatment 2", "2020-01-01", 1),
		row("g", "treatment 9", "2020-01-01", 1),
		row("g", "border", "2020-01-01", 1),
	})
	got := LabelTreatments(raw)
	assert.Equal(t, "Moderately Water Limited", got.Row(0).Treatment)
	assert.Equal(t, MissingLabel, got.Row(1).Treatment)
	assert.Equal(t, "Border", got.Row(2).Treatment)
	// input untouched
	assert.Equal(t, "treatment 9", raw.Row(1).Treatment)
}

func TestExcludeTreatmentsKeepsMissingLabels(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("g", "treatment 1", "2020-01-01", 1),
		row("g", "treatment 2", "2020-01-01", 1),
		row("g", "border", "2020-01-01", 1),
		row("g", "treatment 3", "2020-01-01", 1),
		row("g", "unknown", "2020-01-01", 1),
	})
	got := ExcludeTreatments(LabelTreatments(raw), ExcludedTreatments()...)
	var labels []string
	for _, r := range got.Rows() {
		labels = append(labels, r.Treatment)
	}
	assert.Equal(t, []string{"Well Watered", "Water Limited", MissingLabel}, labels)
}

func TestDropOutliersZeroVarianceKeepsAll(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("a", "t", "2020-01-01", 2),
		row("b", "t", "2020-01-01", 2),
		row("c", "t", "2020-01-01", 2),
	})
	got, err := DropOutliers(raw, "x")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
}

func TestDropOutliersZeroMADDropsDeparture(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, []dataset.Row{
		row("a", "t", "2020-01-01", 2),
		row("b", "t", "2020-01-01", 2),
		row("c", "t", "2020-01-01", 2),
		row("d", "t", "2020-01-01", math.NaN()),
		row("e", "t", "2020-01-01", 5),
	})
	got, err := DropOutliers(raw, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, genotypes(got))
}

func TestDropOutliersMissingColumn(t *testing.T) {
	raw := dataset.MustNew([]string{"x"}, nil)
	_, err := DropOutliers(raw, "y")
	var mce *dataset.MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "y", mce.Column)
}

func TestDropOutliersLeavesInputIntact(t *testing.T) {
	raw := orderFixture()
	got, err := DropOutliers(raw, dataset.ColFvFm)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Len())
	assert.Equal(t, 8, raw.Len())
}

func TestCleanOutlierOrderIsFixed(t *testing.T) {
	res, err := Clean(orderFixture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"genoA", "genoB", "genoC", "genoD", "genoE", "genoF"}, genotypes(res.Table))

	var passes []string
	for _, s := range res.Trace {
		if s.Stage == StageOutliers {
			passes = append(passes, s.Column)
		}
	}
	assert.Equal(t, OutlierColumns(), passes)

	// The same passes in reverse leave a different population.
	t2 := ExcludeTreatments(LabelTreatments(GroupMedians(orderFixture())), ExcludedTreatments()...)
	cols := OutlierColumns()
	for i := len(cols) - 1; i >= 0; i-- {
		t2, err = DropOutliers(t2, cols[i])
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"genoA", "genoD"}, genotypes(t2))
}

func TestCleanHeightOnlyForSurvivors(t *testing.T) {
	res, err := Clean(orderFixture(), Options{})
	require.NoError(t, err)
	for i, r := range res.Table.Rows() {
		assert.NotEqual(t, "genoH", r.Genotype)
		assert.NotEqual(t, "genoG", r.Genotype)
		assert.False(t, dataset.IsMissing(res.Table.Value(i, dataset.ColHeight)))
	}
	last := res.Trace[len(res.Trace)-1]
	assert.Equal(t, StageHeight, last.Stage)
	assert.Equal(t, 6, last.RowsIn)
}

func TestCleanExcludesHybrids(t *testing.T) {
	raw := dataset.MustNew(allCols, []dataset.Row{
		row("Iceberg", "treatment 1", "2020-01-01", 0.8, 1, 2, 30, 1, 0),
		row("GRxI_12", "treatment 1", "2020-01-01", 0.8, 1, 2, 30, 1, 0),
		row("Aido GRxI", "treatment 3", "2020-01-02", 0.8, 1, 2, 30, 1, 0),
	})
	res, err := Clean(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Iceberg"}, genotypes(res.Table))
}

func TestCleanMissingHeightInputs(t *testing.T) {
	raw := dataset.MustNew(allCols, []dataset.Row{
		row("a", "treatment 1", "2020-01-01", 0.8, 1, 2, 30, math.NaN(), 0),
	})
	res, err := Clean(raw, Options{})
	require.NoError(t, err)
	assert.True(t, dataset.IsMissing(res.Table.Value(0, dataset.ColHeight)))
}

func TestCleanMissingColumnPolicy(t *testing.T) {
	cols := []string{dataset.ColFvFm, dataset.ColBoundingArea, dataset.ColCanopyTemp}
	raw := dataset.MustNew(cols, []dataset.Row{
		row("a", "treatment 1", "2020-01-01", 0.8, 1, 30),
		row("b", "treatment 1", "2020-01-01", 0.8, 1, 30),
	})

	_, err := Clean(raw, Options{MissingColumns: PolicyFail})
	var mce *dataset.MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, dataset.ColOrientedBox, mce.Column)

	res, err := Clean(raw, Options{MissingColumns: PolicySkip})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
	assert.Equal(t, []string{dataset.ColOrientedBox, dataset.ColMaxZ, dataset.ColMinZ}, res.Missing)
	var skipped []string
	for _, s := range res.Trace {
		if s.Skipped {
			skipped = append(skipped, s.Name())
		}
	}
	assert.Equal(t, []string{"outliers:oriented_bounding_box", "height"}, skipped)
	assert.True(t, res.Table.Has(dataset.ColHeight))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, p)
	p, err = ParsePolicy(" FAIL ")
	require.NoError(t, err)
	assert.Equal(t, PolicyFail, p)
	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

type fakeSource struct {
	table *dataset.Table
	err   error
}

func (f fakeSource) Load(context.Context, string) (*dataset.Table, error) { return f.table, f.err }

func TestRunWrapsLoadErrors(t *testing.T) {
	cause := &dataset.SourceUnavailableError{Source: "x.csv", Err: errors.New("boom")}
	_, err := Run(context.Background(), fakeSource{err: cause}, "x.csv", Options{})
	var sue *dataset.SourceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "x.csv", sue.Source)
}

func TestRunRecordsSource(t *testing.T) {
	res, err := Run(context.Background(), fakeSource{table: orderFixture()}, "fixture.csv", Options{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "fixture.csv", res.Source)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 6, res.Table.Len())
	assert.Equal(t, 8, res.Trace[0].RowsIn)
}

// replicateFixture has two raw rows per key so grouping averages the middle
// pair, with a missing reading in some replicates.
func replicateFixture() []dataset.Row {
	var rows []dataset.Row
	for g := 0; g < 6; g++ {
		for _, tr := range []string{"treatment 1", "treatment 3", "border"} {
			for d, date := range []string{"2020-03-01", "2020-03-08"} {
				for rep := 0; rep < 2; rep++ {
					base := float64(g*7+d*3+rep) / 100
					med := 30 + base*10
					if rep == 0 && g%2 == 0 {
						med = math.NaN()
					}
					rows = append(rows, row(fmt.Sprintf("geno%d", g), tr, date,
						0.78+base/10, 1+base, 2+base, med, 0.4+base, 0.1+base/5))
				}
			}
		}
	}
	return rows
}

func TestCleanIsDeterministic(t *testing.T) {
	rows := replicateFixture()
	want, err := Clean(dataset.MustNew(allCols, rows), Options{})
	require.NoError(t, err)
	require.NotZero(t, want.Table.Len())

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]dataset.Row(nil), rows...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := Clean(dataset.MustNew(allCols, shuffled), Options{})
		require.NoError(t, err)
		assert.Equal(t, want.Table.Columns(), got.Table.Columns())
		assert.Equal(t, want.Table.Rows(), got.Table.Rows(), "shuffle %d", i)
		assert.Equal(t, want.Trace, got.Trace)
	}

	// Cleaning the same table again gives the same result.
	again, err := Clean(dataset.MustNew(allCols, rows), Options{})
	require.NoError(t, err)
	assert.Equal(t, want.Table.Rows(), again.Table.Rows())
}
