package grid

import (
	"math"
	"time"
)

// Solar geometry used to convert instantaneous short-wave radiation into
// interval averages. Declination and equation of time follow Spencer's
// Fourier fits, which are accurate to well under a quarter degree.

// solarPosition returns the solar declination [rad] and the equation of time
// [rad of hour angle] for the given instant.
func solarPosition(t time.Time) (decl, eqTime float64) {
	t = t.UTC()
	doy := float64(t.YearDay() - 1)
	frac := (float64(t.Hour()) + float64(t.Minute())/60) / 24
	γ := 2 * math.Pi / 365 * (doy + frac)

	decl = 0.006918 - 0.399912*math.Cos(γ) + 0.070257*math.Sin(γ) -
		0.006758*math.Cos(2*γ) + 0.000907*math.Sin(2*γ) -
		0.002697*math.Cos(3*γ) + 0.00148*math.Sin(3*γ)

	// Equation of time in minutes, converted to radians of hour angle
	// (one hour = 15 degrees).
	eqMinutes := 229.18 * (0.000075 + 0.001868*math.Cos(γ) - 0.032077*math.Sin(γ) -
		0.014615*math.Cos(2*γ) - 0.040849*math.Sin(2*γ))
	eqTime = eqMinutes / 60 * 15 * math.Pi / 180
	return decl, eqTime
}

// hourAngle returns the solar hour angle [rad] at longitude lon.
func hourAngle(t time.Time, lon, eqTime float64) float64 {
	t = t.UTC()
	solarTime := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	ha := (solarTime-12)*15*math.Pi/180 + lon*math.Pi/180 + eqTime
	for ha > math.Pi {
		ha -= 2 * math.Pi
	}
	for ha < -math.Pi {
		ha += 2 * math.Pi
	}
	return ha
}

// CosZenith returns the cosine of the solar zenith angle at t, clamped to 0
// below the horizon.
func CosZenith(t time.Time, lat, lon float64) float64 {
	decl, eq := solarPosition(t)
	φ := lat * math.Pi / 180
	ha := hourAngle(t, lon, eq)
	cz := math.Sin(φ)*math.Sin(decl) + math.Cos(φ)*math.Cos(decl)*math.Cos(ha)
	if cz < 0 {
		return 0
	}
	return cz
}

// MeanCosZenith integrates CosZenith over [start, start+dt] analytically,
// clipping the hour-angle interval at sunrise and sunset.
func MeanCosZenith(start time.Time, dt time.Duration, lat, lon float64) float64 {
	mid := start.Add(dt / 2)
	decl, eq := solarPosition(mid)
	φ := lat * math.Pi / 180

	haMid := hourAngle(mid, lon, eq)
	halfWidth := dt.Hours() / 2 * 15 * math.Pi / 180
	h1 := haMid - halfWidth
	h2 := haMid + halfWidth

	a := math.Sin(φ) * math.Sin(decl)
	b := math.Cos(φ) * math.Cos(decl)

	// Hour angle of sunset; the sun is up for |h| < hs.
	cosHS := -a / b
	var hs float64
	switch {
	case cosHS <= -1:
		hs = math.Pi // polar day
	case cosHS >= 1:
		return 0 // polar night
	default:
		hs = math.Acos(cosHS)
	}

	lo := math.Max(h1, -hs)
	hi := math.Min(h2, hs)
	if lo >= hi {
		return 0
	}
	integral := a*(hi-lo) + b*(math.Sin(hi)-math.Sin(lo))
	return integral / (h2 - h1)
}

// RadiationFactors computes, for each cell in [first, first+n) of the grid,
// the ratio of the instantaneous to the interval-mean zenith cosine at
// validTime. Dividing an instantaneous short-wave flux by this factor yields
// the backwards-averaged flux over the preceding dt.
func RadiationFactors(p Projection, first, n int, validTime time.Time, dt time.Duration) []float64 {
	factors := make([]float64, n)
	for i := 0; i < n; i++ {
		lat, lon := p.Coord(first + i)
		mean := MeanCosZenith(validTime.Add(-dt), dt, lat, lon)
		if mean <= 0 {
			factors[i] = 0
			continue
		}
		factors[i] = CosZenith(validTime, lat, lon) / mean
	}
	return factors
}
