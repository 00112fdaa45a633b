package pipeline

import (
	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/robust"
)

// OutlierColumns returns the outlier-removal targets in application order.
func OutlierColumns() []string {
	return []string{dataset.ColFvFm, dataset.ColBoundingArea, dataset.ColOrientedBox, dataset.ColCanopyTemp}
}

// DropOutliers returns t without the rows the MAD-median rule flags on column.
// The flag is computed on t as given, so chained calls compound. The input
// table is not modified.
func DropOutliers(t *dataset.Table, column string) (*dataset.Table, error) {
	vals, err := t.Column(column)
	if err != nil {
		return nil, &dataset.MissingColumnError{Column: column, Stage: StageOutliers}
	}
	return t.Mask(robust.MADMedianRule(vals))
}
