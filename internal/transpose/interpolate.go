package transpose

import (
	"math"
	"time"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/grid"
)

// FillGaps interpolates NaN runs between known samples in place. Cells
// before the first or after the last known sample stay NaN; they belong to
// hours the run never produced.
func FillGaps(kind domain.Interpolation, series []float64) {
	prev := -1
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			fillSegment(kind, series, prev, i)
		}
		prev = i
	}
}

func fillSegment(kind domain.Interpolation, series []float64, lo, hi int) {
	switch kind {
	case domain.InterpolationNearest:
		for t := lo + 1; t < hi; t++ {
			if t-lo <= hi-t {
				series[t] = series[lo]
			} else {
				series[t] = series[hi]
			}
		}
	case domain.InterpolationHermite:
		p0 := knownBefore(series, lo)
		p3 := knownAfter(series, hi)
		// Tangents follow the real spacing of the support points, scaled to
		// the segment length; the outer points handed to the Catmull-Rom
		// form are placed so that it uses exactly these tangents.
		span := float64(hi - lo)
		m1 := (series[hi] - series[p0]) / float64(hi-p0) * span
		m2 := (series[p3] - series[lo]) / float64(p3-lo) * span
		for t := lo + 1; t < hi; t++ {
			f := float64(t-lo) / span
			series[t] = hermite(series[hi]-2*m1, series[lo], series[hi], series[lo]+2*m2, f)
		}
	default:
		for t := lo + 1; t < hi; t++ {
			f := float64(t-lo) / float64(hi-lo)
			series[t] = series[lo]*(1-f) + series[hi]*f
		}
	}
}

func knownBefore(series []float64, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !math.IsNaN(series[j]) {
			return j
		}
	}
	return i
}

func knownAfter(series []float64, i int) int {
	for j := i + 1; j < len(series); j++ {
		if !math.IsNaN(series[j]) {
			return j
		}
	}
	return i
}

// hermite is the Catmull-Rom cubic through p1 and p2 with outer support
// points p0 and p3.
func hermite(p0, p1, p2, p3, t float64) float64 {
	a := -p0/2 + 3*p1/2 - 3*p2/2 + p3/2
	b := p0 - 5*p1/2 + 2*p2 - p3/2
	c := -p0/2 + p2/2
	d := p1
	return ((a*t+b)*t+c)*t + d
}

// FillGapsSolarBackward fills gaps in a backwards-averaged solar flux
// series. A known sample at index i is the mean flux over the whole gap
// (prev, i]; the gap cells are redistributed along the zenith-cosine curve
// so each step carries its astronomically plausible share.
func FillGapsSolarBackward(series []float64, lat, lon float64, start time.Time, dt time.Duration) {
	prev := -1
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			solarSegment(series, prev, i, lat, lon, start, dt)
		}
		prev = i
	}
}

func solarSegment(series []float64, lo, hi int, lat, lon float64, start time.Time, dt time.Duration) {
	n := hi - lo
	weights := make([]float64, n)
	var sum float64
	for k := 0; k < n; k++ {
		stepEnd := start.Add(time.Duration(lo+1+k) * dt)
		weights[k] = grid.MeanCosZenith(stepEnd.Add(-dt), dt, lat, lon)
		sum += weights[k]
	}
	avg := series[hi]
	if sum <= 0 {
		for t := lo + 1; t < hi; t++ {
			series[t] = 0
		}
		return
	}
	scale := avg * float64(n) / sum
	for k := 0; k < n-1; k++ {
		series[lo+1+k] = weights[k] * scale
	}
	series[hi] = weights[n-1] * scale
}
