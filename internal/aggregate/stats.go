package aggregate

import (
	"math"
	"sort"

	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Series Statistics ────────────────────────────────────────────────────────

// SeriesStats holds descriptive statistics over a bucket series.
type SeriesStats struct {
	Buckets int     `json:"buckets"`
	Total   float64 `json:"total"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	P25     float64 `json:"p25"`
	Median  float64 `json:"median"`
	P75     float64 `json:"p75"`
	Max     float64 `json:"max"`
	PeakKey string  `json:"peakKey"` // first bucket holding Max
	LowKey  string  `json:"lowKey"`  // first bucket holding Min
}

// Describe summarises the sums of buckets. An empty series yields zeros.
func Describe(buckets []model.Bucket) SeriesStats {
	s := SeriesStats{Buckets: len(buckets)}
	if len(buckets) == 0 {
		return s
	}

	vals := make([]float64, len(buckets))
	for i, b := range buckets {
		vals[i] = b.Sum
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Total = sumF(vals)
	s.Mean = s.Total / float64(len(vals))
	s.Std = stddevF(vals, s.Mean)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Median = percentile(sorted, 50)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)

	for _, b := range buckets {
		if s.PeakKey == "" && b.Sum == s.Max {
			s.PeakKey = b.Key
		}
		if s.LowKey == "" && b.Sum == s.Min {
			s.LowKey = b.Key
		}
	}
	return s
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendResult is an ordinary least-squares fit over bucket position.
type TrendResult struct {
	Slope     float64 `json:"slope"` // change per bucket
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	Direction string  `json:"direction"` // "up", "down", "flat"
}

// flatTolerance is the relative slope, against the mean, treated as flat.
const flatTolerance = 0.01

// Trend fits a line through the bucket sums in order. Fewer than two
// buckets give a flat result.
func Trend(buckets []model.Bucket) TrendResult {
	tr := TrendResult{Direction: "flat"}
	if len(buckets) < 2 {
		if len(buckets) == 1 {
			tr.Intercept = buckets[0].Sum
		}
		tr.R2 = 1
		return tr
	}

	n := float64(len(buckets))
	var xSum, ySum, xySum, x2Sum float64
	for i, b := range buckets {
		x := float64(i)
		xSum += x
		ySum += b.Sum
		xySum += x * b.Sum
		x2Sum += x * x
	}
	denom := n*x2Sum - xSum*xSum
	tr.Slope = (n*xySum - xSum*ySum) / denom
	tr.Intercept = (ySum - tr.Slope*xSum) / n

	yMean := ySum / n
	var ssTot, ssRes float64
	for i, b := range buckets {
		pred := tr.Slope*float64(i) + tr.Intercept
		ssTot += (b.Sum - yMean) * (b.Sum - yMean)
		ssRes += (b.Sum - pred) * (b.Sum - pred)
	}
	if ssTot == 0 {
		tr.R2 = 1
	} else {
		tr.R2 = 1 - ssRes/ssTot
	}

	scale := math.Abs(yMean)
	if scale == 0 {
		scale = 1
	}
	switch rel := tr.Slope / scale; {
	case rel > flatTolerance:
		tr.Direction = "up"
	case rel < -flatTolerance:
		tr.Direction = "down"
	}
	return tr
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
