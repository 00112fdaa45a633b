// Package pipeline turns raw phenotype measurements into the cleaned table
// the dashboard charts.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/logging"
)

// Stage names used in traces, logs and errors.
const (
	StageGroup             = "group"
	StageLabel             = "label"
	StageExcludeTreatments = "exclude-treatments"
	StageOutliers          = "outliers"
	StageExcludeGenotypes  = "exclude-genotypes"
	StageHeight            = "height"
)

// Policy decides what happens when a column a stage needs is absent.
type Policy string

const (
	// PolicySkip logs the gap and runs the stage without that column.
	PolicySkip Policy = "skip"
	// PolicyFail aborts with a *dataset.MissingColumnError before any stage runs.
	PolicyFail Policy = "fail"
)

// ParsePolicy accepts "skip" or "fail" (case-insensitive); empty means skip.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicySkip):
		return PolicySkip, nil
	case string(PolicyFail):
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("invalid missing-column policy %q (use skip or fail)", s)
	}
}

// Options controls a pipeline run.
type Options struct {
	MissingColumns Policy
	// RunID tags log lines; one is generated when empty.
	RunID string
}

// StageResult records the row population before and after one stage.
type StageResult struct {
	Stage   string `json:"stage"`
	Column  string `json:"column,omitempty"`
	RowsIn  int    `json:"rows_in"`
	RowsOut int    `json:"rows_out"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Removed is the number of rows the stage dropped.
func (s StageResult) Removed() int { return s.RowsIn - s.RowsOut }

// Name is the stage name qualified by its column, e.g. "outliers:FV/FM".
func (s StageResult) Name() string {
	if s.Column == "" {
		return s.Stage
	}
	return s.Stage + ":" + s.Column
}

// Result is a cleaned table plus how it was produced.
type Result struct {
	RunID    string
	Source   string
	RawRows  int
	Table    *dataset.Table
	Trace    []StageResult
	Missing  []string
	Started  time.Time
	Duration time.Duration
}

// Source loads a raw table from a locator. *dataset.Loader implements it.
type Source interface {
	Load(ctx context.Context, locator string) (*dataset.Table, error)
}

// Run loads locator and cleans it.
func Run(ctx context.Context, src Source, locator string, opt Options) (*Result, error) {
	if opt.RunID == "" {
		opt.RunID = uuid.NewString()
	}
	start := time.Now()
	raw, err := src.Load(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", locator, err)
	}
	res, err := Clean(raw, opt)
	if err != nil {
		return nil, err
	}
	res.Source = locator
	res.Started = start
	res.Duration = time.Since(start)
	logging.Infow("pipeline complete", "run_id", res.RunID, "source", locator,
		"raw_rows", res.RawRows, "rows", res.Table.Len(), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// Clean applies, in order: per-key median grouping, treatment labelling,
// treatment exclusion, MAD-median outlier removal on each OutlierColumns entry
// in sequence, hybrid genotype exclusion and height derivation. The result is
// sorted by key. raw is not modified.
func Clean(raw *dataset.Table, opt Options) (*Result, error) {
	policy := opt.MissingColumns
	if policy == "" {
		policy = PolicySkip
	}
	if opt.RunID == "" {
		opt.RunID = uuid.NewString()
	}
	missing, err := checkSchema(raw, policy)
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: opt.RunID, RawRows: raw.Len(), Missing: missing, Started: time.Now()}
	step := func(stage, column string, in, out *dataset.Table, skipped bool) {
		sr := StageResult{Stage: stage, Column: column, RowsIn: in.Len(), RowsOut: out.Len(), Skipped: skipped}
		res.Trace = append(res.Trace, sr)
		logging.Debugw("stage", "run_id", opt.RunID, "stage", sr.Name(),
			"rows_in", sr.RowsIn, "rows_out", sr.RowsOut, "skipped", skipped)
	}

	t := GroupMedians(raw)
	step(StageGroup, "", raw, t, false)

	labelled := LabelTreatments(t)
	step(StageLabel, "", t, labelled, false)
	t = labelled

	kept := ExcludeTreatments(t, ExcludedTreatments()...)
	step(StageExcludeTreatments, "", t, kept, false)
	t = kept

	for _, col := range OutlierColumns() {
		if !t.Has(col) {
			logging.Warnw("outlier column absent, skipping", "run_id", opt.RunID, "column", col)
			step(StageOutliers, col, t, t, true)
			continue
		}
		next, err := DropOutliers(t, col)
		if err != nil {
			return nil, err
		}
		step(StageOutliers, col, t, next, false)
		t = next
	}

	kept = ExcludeGenotypes(t, HybridMarker)
	step(StageExcludeGenotypes, "", t, kept, false)
	t = kept

	withHeight, err := DeriveHeight(t)
	if err != nil {
		// Only reachable under PolicySkip; PolicyFail rejected the table up front.
		logging.Warnw("height inputs absent, height left missing", "run_id", opt.RunID, "error", err)
		withHeight = t.WithColumn(dataset.ColHeight, func(dataset.Row) float64 { return dataset.Missing() })
		step(StageHeight, "", t, withHeight, true)
	} else {
		step(StageHeight, "", t, withHeight, false)
	}
	res.Table = withHeight.Sorted()
	res.Duration = time.Since(res.Started)
	return res, nil
}

// checkSchema enforces the phenotype column contract once, before any stage runs.
func checkSchema(raw *dataset.Table, policy Policy) ([]string, error) {
	var missing []string
	for _, c := range dataset.PhenotypeColumns() {
		if !raw.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if policy == PolicyFail {
		return nil, &dataset.MissingColumnError{Column: missing[0], Stage: stageFor(missing[0])}
	}
	return missing, nil
}

func stageFor(column string) string {
	switch column {
	case dataset.ColMaxZ, dataset.ColMinZ:
		return StageHeight
	default:
		return StageOutliers
	}
}
