// Package smooth implements LOWESS trendlines for growth curves.
package smooth

import (
	"errors"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// DefaultIterations is the number of robustifying passes after the first fit.
const DefaultIterations = 3

// Point is one fitted sample.
type Point struct {
	X float64
	Y float64
}

// ErrLength indicates x and y differ in length.
var ErrLength = errors.New("lowess: x and y lengths differ")

// Lowess fits a locally weighted linear regression. Each fit uses the
// ceil(frac*n) nearest neighbours with tricube weights; iterations robustify
// the fit with bisquare weights on residuals scaled by 6*median|residual|.
// Pairs with a NaN coordinate are ignored. The result is ordered by x.
func Lowess(x, y []float64, frac float64, iterations int) ([]Point, error) {
	if len(x) != len(y) {
		return nil, ErrLength
	}
	if frac <= 0 || frac > 1 {
		frac = 1
	}
	if iterations < 0 {
		iterations = 0
	}
	pts := make([]Point, 0, len(x))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		pts = append(pts, Point{X: x[i], Y: y[i]})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	n := len(pts)
	if n < 2 {
		return pts, nil
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	k := int(math.Ceil(frac*float64(n) - 1e-10))
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	var scale float64
	for _, v := range ys {
		scale += math.Abs(v)
	}
	scale /= float64(n)
	robustness := make([]float64, n)
	for i := range robustness {
		robustness[i] = 1
	}
	fitted := make([]float64, n)
	for pass := 0; pass <= iterations; pass++ {
		left := 0
		for i := 0; i < n; i++ {
			for left+k < n && xs[i]-xs[left] > xs[left+k]-xs[i] {
				left++
			}
			fitted[i] = localFit(xs[left:left+k], ys[left:left+k], robustness[left:left+k], xs[i])
		}
		if pass == iterations {
			break
		}
		if !updateRobustness(ys, fitted, robustness, scale) {
			break
		}
	}
	out := make([]Point, n)
	for i := range out {
		out[i] = Point{X: xs[i], Y: fitted[i]}
	}
	return out, nil
}

func localFit(xs, ys, robustness []float64, at float64) float64 {
	h := math.Max(at-xs[0], xs[len(xs)-1]-at)
	w := make([]float64, len(xs))
	var total float64
	for j, xj := range xs {
		wj := 1.0
		if h > 0 {
			wj = tricube(math.Abs(xj-at) / h)
		}
		w[j] = wj * robustness[j]
		total += w[j]
	}
	if total == 0 {
		// Every neighbour was rejected; fall back to the unweighted neighbourhood.
		for j := range w {
			w[j] = 1
		}
	}
	if v := stat.Variance(xs, w); v == 0 || math.IsNaN(v) {
		return stat.Mean(ys, w)
	}
	alpha, beta := stat.LinearRegression(xs, ys, w, false)
	return alpha + beta*at
}

// updateRobustness recomputes bisquare weights in place. It reports false when
// the residual scale is negligible next to scale and further passes would only
// amplify rounding noise.
func updateRobustness(ys, fitted, robustness []float64, scale float64) bool {
	abs := make([]float64, len(ys))
	for i := range ys {
		abs[i] = math.Abs(ys[i] - fitted[i])
	}
	s, err := stats.Median(abs)
	if err != nil || s <= 1e-7*scale {
		return false
	}
	for i, r := range abs {
		robustness[i] = bisquare(r / (6 * s))
	}
	return true
}

func tricube(u float64) float64 {
	if u >= 1 {
		return 0
	}
	c := 1 - u*u*u
	return c * c * c
}

func bisquare(u float64) float64 {
	if u >= 1 {
		return 0
	}
	c := 1 - u*u
	return c * c
}
