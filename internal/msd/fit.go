package msd

import (
	"errors"
	"math"
)

var errFitTooShort = errors.New("msd: fewer than two points to fit")

// Linfit performs an ordinary least-squares fit y = intercept + slope*x and
// returns the standard error of the slope. With only two points the fit is
// exact and the error is zero.
func Linfit(xs, ys []float64) (slope, intercept, stderr float64, err error) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0, 0, 0, errFitTooShort
	}

	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx := sx / float64(n)
	my := sy / float64(n)

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}
	if sxx == 0 {
		return 0, 0, 0, errors.New("msd: degenerate fit window (all x equal)")
	}

	slope = sxy / sxx
	intercept = my - slope*mx

	if n > 2 {
		var ssr float64
		for i := range xs {
			r := ys[i] - (intercept + slope*xs[i])
			ssr += r * r
		}
		stderr = math.Sqrt(ssr / float64(n-2) / sxx)
	}
	return slope, intercept, stderr, nil
}

// mean and standard error of the mean over a sample.
func meanSEM(vals []float64) (float64, float64) {
	n := float64(len(vals))
	var sum float64
	for _, v := range vals {
		sum += v
	}
	m := sum / n

	if len(vals) < 2 {
		return m, 0
	}
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return m, math.Sqrt(ss/(n-1)) / math.Sqrt(n)
}
