package chart

import (
	"fmt"
	"sort"
	"time"

	"github.com/KaramelBytes/phenodash/internal/dataset"
	"github.com/KaramelBytes/phenodash/internal/smooth"
)

const (
	DefaultWidth  = 1100
	DefaultHeight = 500
	DefaultFrac   = 1.0

	facetSpacing   = 0.04
	unlabelledName = "unlabelled"
	dateAxisFormat = dataset.DateLayout
)

// Plotly's default qualitative palette.
var palette = []string{
	"#636efa", "#EF553B", "#00cc96", "#ab63fa", "#FFA15A",
	"#19d3f3", "#FF6692", "#B6E880", "#FF97FF", "#FECB52",
}

// Options tune a figure build.
type Options struct {
	// Genotype restricts the figure to one genotype when set.
	Genotype string
	Frac     float64
	Width    int
	Height   int
}

// Figure is a Plotly figure: data traces plus layout.
type Figure struct {
	Data   []Trace        `json:"data"`
	Layout map[string]any `json:"layout"`
}

// Trace is a Plotly scatter trace.
type Trace struct {
	Type        string    `json:"type"`
	Mode        string    `json:"mode"`
	Name        string    `json:"name"`
	LegendGroup string    `json:"legendgroup"`
	ShowLegend  bool      `json:"showlegend"`
	X           []string  `json:"x"`
	Y           []float64 `json:"y"`
	XAxis       string    `json:"xaxis"`
	YAxis       string    `json:"yaxis"`
	Marker      *Style    `json:"marker,omitempty"`
	Line        *Style    `json:"line,omitempty"`
	Hover       string    `json:"hovertemplate,omitempty"`
}

// Style holds a trace colour.
type Style struct {
	Color string `json:"color"`
}

// Points counts the marker samples across all scatter traces.
func (f *Figure) Points() int {
	n := 0
	for _, tr := range f.Data {
		if tr.Mode == "markers" {
			n += len(tr.Y)
		}
	}
	return n
}

type sample struct {
	row dataset.Row
	y   float64
}

// Build renders spec from t: one facet column per treatment label, one colour
// per genotype, markers for each measurement and a LOWESS trendline per
// genotype and facet. Rows with a missing y value are left out.
func Build(t *dataset.Table, spec Spec, opt Options) (*Figure, error) {
	if !t.Has(spec.Column) {
		return nil, &dataset.MissingColumnError{Column: spec.Column, Stage: "chart:" + spec.Name}
	}
	if opt.Frac <= 0 {
		opt.Frac = DefaultFrac
	}
	if opt.Width <= 0 {
		opt.Width = DefaultWidth
	}
	if opt.Height <= 0 {
		opt.Height = DefaultHeight
	}

	var samples []sample
	for i, r := range t.Rows() {
		if opt.Genotype != "" && r.Genotype != opt.Genotype {
			continue
		}
		y := t.Value(i, spec.Column)
		if dataset.IsMissing(y) {
			continue
		}
		samples = append(samples, sample{row: r, y: y})
	}
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i].row, samples[j].row
		if a.Genotype != b.Genotype {
			return a.Genotype < b.Genotype
		}
		if a.Treatment != b.Treatment {
			return a.Treatment < b.Treatment
		}
		return a.Date.Before(b.Date)
	})

	facets := distinct(samples, func(s sample) string { return facetName(s.row.Treatment) })
	genotypes := distinct(samples, func(s sample) string { return s.row.Genotype })
	colour := make(map[string]string, len(genotypes))
	for i, g := range genotypes {
		colour[g] = palette[i%len(palette)]
	}

	fig := &Figure{Layout: layout(spec, facets, opt)}
	legendShown := make(map[string]bool, len(genotypes))
	for fi, facet := range facets {
		xa, ya := axisRef("x", fi), axisRef("y", fi)
		for _, g := range genotypes {
			var xs []string
			var ys, secs []float64
			for _, s := range samples {
				if s.row.Genotype != g || facetName(s.row.Treatment) != facet {
					continue
				}
				xs = append(xs, s.row.Date.Format(dateAxisFormat))
				ys = append(ys, s.y)
				secs = append(secs, float64(s.row.Date.Unix()))
			}
			if len(ys) == 0 {
				continue
			}
			fig.Data = append(fig.Data, Trace{
				Type:        "scatter",
				Mode:        "markers",
				Name:        g,
				LegendGroup: g,
				ShowLegend:  !legendShown[g],
				X:           xs,
				Y:           ys,
				XAxis:       xa,
				YAxis:       ya,
				Marker:      &Style{Color: colour[g]},
				Hover:       fmt.Sprintf("genotype=%s<br>treatment=%s<br>date=%%{x}<br>%s=%%{y}<extra></extra>", g, facet, spec.Column),
			})
			legendShown[g] = true

			fit, err := smooth.Lowess(secs, ys, opt.Frac, smooth.DefaultIterations)
			if err != nil {
				return nil, fmt.Errorf("trendline %s/%s: %w", g, facet, err)
			}
			tr := Trace{
				Type:        "scatter",
				Mode:        "lines",
				Name:        g,
				LegendGroup: g,
				XAxis:       xa,
				YAxis:       ya,
				Line:        &Style{Color: colour[g]},
			}
			for _, p := range fit {
				tr.X = append(tr.X, dateFromUnix(p.X))
				tr.Y = append(tr.Y, p.Y)
			}
			fig.Data = append(fig.Data, tr)
		}
	}
	return fig, nil
}

func layout(spec Spec, facets []string, opt Options) map[string]any {
	l := map[string]any{
		"title":  map[string]any{"text": spec.Title},
		"width":  opt.Width,
		"height": opt.Height,
		"legend": map[string]any{"title": map[string]any{"text": "genotype"}, "tracegroupgap": 0},
	}
	n := len(facets)
	if n == 0 {
		l["xaxis"] = map[string]any{"title": map[string]any{"text": dataset.ColDate}}
		l["yaxis"] = map[string]any{"title": map[string]any{"text": spec.Column}}
		return l
	}
	width := (1 - facetSpacing*float64(n-1)) / float64(n)
	var annotations []map[string]any
	for i, facet := range facets {
		lo := float64(i) * (width + facetSpacing)
		hi := lo + width
		if i == n-1 {
			hi = 1
		}
		x := map[string]any{
			"domain": []float64{lo, hi},
			"anchor": axisRef("y", i),
			"title":  map[string]any{"text": dataset.ColDate},
		}
		y := map[string]any{"anchor": axisRef("x", i)}
		if i == 0 {
			y["title"] = map[string]any{"text": spec.Column}
		} else {
			x["matches"] = "x"
			y["matches"] = "y"
			y["showticklabels"] = false
		}
		l[axisRef("xaxis", i)] = x
		l[axisRef("yaxis", i)] = y
		annotations = append(annotations, map[string]any{
			"text":      dataset.ColTreatment + "=" + facet,
			"x":         (lo + hi) / 2,
			"y":         1.0,
			"xref":      "paper",
			"yref":      "paper",
			"xanchor":   "center",
			"yanchor":   "bottom",
			"showarrow": false,
		})
	}
	l["annotations"] = annotations
	return l
}

// axisRef names the i-th facet axis the way Plotly does: "x", "x2", "x3" for
// traces and "xaxis", "xaxis2" for layout keys.
func axisRef(prefix string, i int) string {
	if i == 0 {
		return prefix
	}
	return fmt.Sprintf("%s%d", prefix, i+1)
}

func dateFromUnix(sec float64) string {
	return time.Unix(int64(sec), 0).UTC().Format(dateAxisFormat)
}

func facetName(treatment string) string {
	if treatment == "" {
		return unlabelledName
	}
	return treatment
}

func distinct(samples []sample, key func(sample) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range samples {
		k := key(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
