// Package gallery lists the soil-segmentation animations shown under the charts.
package gallery

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stage is a growth stage column in the gallery.
type Stage struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Item is one animation.
type Item struct {
	Plant     string `json:"plant"`
	Stage     string `json:"stage"`
	File      string `json:"file"`
	Caption   string `json:"caption"`
	Available bool   `json:"available"`
}

// Column groups the items of one stage, in plant order.
type Column struct {
	Stage Stage  `json:"stage"`
	Items []Item `json:"items"`
}

var (
	plants = []string{"Iceberg_230", "Aido_38", "Xanadu_143"}
	stages = []Stage{{1, "Early Season"}, {2, "Mid Season"}, {3, "Late Season"}}
)

// FileName is the image name for plant at stage.
func FileName(plant string, stage Stage) string {
	return fmt.Sprintf("%s_soil_segmentation_%d.gif", plant, stage.Index)
}

// Catalog returns one column per stage. Items are marked available when their
// file exists under dir; an empty dir marks everything unavailable.
func Catalog(dir string) []Column {
	cols := make([]Column, 0, len(stages))
	for _, st := range stages {
		col := Column{Stage: st}
		for _, p := range plants {
			it := Item{
				Plant:   p,
				Stage:   st.Name,
				File:    FileName(p, st),
				Caption: p + " " + st.Name,
			}
			if dir != "" {
				if fi, err := os.Stat(filepath.Join(dir, it.File)); err == nil && !fi.IsDir() {
					it.Available = true
				}
			}
			col.Items = append(col.Items, it)
		}
		cols = append(cols, col)
	}
	return cols
}

// Missing lists the catalogued files absent from dir.
func Missing(dir string) []string {
	var out []string
	for _, c := range Catalog(dir) {
		for _, it := range c.Items {
			if !it.Available {
				out = append(out, it.File)
			}
		}
	}
	return out
}
