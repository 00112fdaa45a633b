// Package chart builds the dashboard's Plotly figures from a cleaned table.
package chart

import (
	"github.com/KaramelBytes/phenodash/internal/dataset"
)

// Spec describes one dashboard figure.
type Spec struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Title  string `json:"title"`
}

var catalog = []Spec{
	{Name: "bounding_area", Column: dataset.ColBoundingArea, Title: "Bounding Area Growth Curves (LOWESS)"},
	{Name: "canopy_temperature", Column: dataset.ColCanopyTemp, Title: "Canopy Temperature Depression"},
	{Name: "fvfm", Column: dataset.ColFvFm, Title: "Photochemical efficiency of PSII"},
	{Name: "height", Column: dataset.ColHeight, Title: "Convex Hull Growth Curves (LOWESS)"},
}

// Catalog returns the figures in page order.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a figure by name.
func Lookup(name string) (Spec, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
