package pipeline

import (
	"math"
	"strings"

	"github.com/KaramelBytes/phenodash/internal/dataset"
)

// MissingLabel is the treatment value of a row whose code has no label.
const MissingLabel = ""

// HybridMarker identifies cross-genotype hybrids in the genotype text.
const HybridMarker = "GRxI"

var treatmentLabels = map[string]string{
	"border":      "Border",
	"treatment 1": "Well Watered",
	"treatment 2": "Moderately Water Limited",
	"treatment 3": "Water Limited",
}

// TreatmentLabel maps a raw treatment code to its display label.
func TreatmentLabel(code string) (string, bool) {
	l, ok := treatmentLabels[code]
	return l, ok
}

// ExcludedTreatments returns the labels removed from the cleaned table.
func ExcludedTreatments() []string {
	return []string{"Border", "Moderately Water Limited"}
}

// LabelTreatments replaces treatment codes with display labels. Unmapped codes
// become MissingLabel.
func LabelTreatments(t *dataset.Table) *dataset.Table {
	return t.MapKeys(func(r dataset.Row) dataset.Row {
		l, ok := TreatmentLabel(r.Treatment)
		if !ok {
			l = MissingLabel
		}
		r.Treatment = l
		return r
	})
}

// ExcludeTreatments drops rows whose treatment label is listed. Rows with a
// missing label are never dropped here.
func ExcludeTreatments(t *dataset.Table, labels ...string) *dataset.Table {
	drop := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		drop[l] = struct{}{}
	}
	return t.Filter(func(r dataset.Row) bool {
		if r.Treatment == MissingLabel {
			return true
		}
		_, excluded := drop[r.Treatment]
		return !excluded
	})
}

// ExcludeGenotypes drops rows whose genotype contains marker.
func ExcludeGenotypes(t *dataset.Table, marker string) *dataset.Table {
	return t.Filter(func(r dataset.Row) bool { return !strings.Contains(r.Genotype, marker) })
}

// DeriveHeight adds height = max_z - min_z. Rows missing either input get a
// missing height.
func DeriveHeight(t *dataset.Table) (*dataset.Table, error) {
	maxIdx, ok := t.Index(dataset.ColMaxZ)
	if !ok {
		return nil, &dataset.MissingColumnError{Column: dataset.ColMaxZ, Stage: StageHeight}
	}
	minIdx, ok := t.Index(dataset.ColMinZ)
	if !ok {
		return nil, &dataset.MissingColumnError{Column: dataset.ColMinZ, Stage: StageHeight}
	}
	return t.WithColumn(dataset.ColHeight, func(r dataset.Row) float64 {
		hi, lo := r.Values[maxIdx], r.Values[minIdx]
		if math.IsNaN(hi) || math.IsNaN(lo) {
			return dataset.Missing()
		}
		return hi - lo
	}), nil
}
