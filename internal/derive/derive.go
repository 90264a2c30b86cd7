// Package derive synthesises query-time variables from stored base series.
// Everything here is pure: slices in, slices out, no I/O.
package derive

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// WindSpeed combines u and v components into scalar speed.
func WindSpeed(u, v []float64) []float64 {
	out := make([]float64, len(u))
	for i := range u {
		out[i] = math.Hypot(u[i], v[i])
	}
	return out
}

// WindDirection returns the meteorological direction (degrees the wind blows
// from), normalised to [0, 360).
func WindDirection(u, v []float64) []float64 {
	out := make([]float64, len(u))
	for i := range u {
		deg := math.Atan2(-u[i], -v[i]) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		out[i] = deg
	}
	return out
}

// RelativeHumidityFromDewpoint is the fallback when a product stores
// dew point instead of humidity. Inputs in °C, output in %.
func RelativeHumidityFromDewpoint(temperature, dewpoint []float64) []float64 {
	out := make([]float64, len(temperature))
	for i := range temperature {
		es := saturationVapourPressure(temperature[i])
		e := saturationVapourPressure(dewpoint[i])
		out[i] = math.Max(0, math.Min(100, 100*e/es))
	}
	return out
}

// saturationVapourPressure is the Tetens fit over water [hPa], t in °C.
func saturationVapourPressure(t float64) float64 {
	return 6.112 * math.Exp(17.67*t/(t+243.5))
}

// aggregation window: seasonal products store 6-hourly steps, four per day.
const stepsPerDay = 4

// DailyMax collapses a 6-hourly series into daily maxima.
func DailyMax(series []float64) []float64 {
	return reduceByDay(series, floats.Max)
}

// DailyMin collapses a 6-hourly series into daily minima.
func DailyMin(series []float64) []float64 {
	return reduceByDay(series, floats.Min)
}

// DailySum collapses a 6-hourly series into daily sums.
func DailySum(series []float64) []float64 {
	return reduceByDay(series, floats.Sum)
}

func reduceByDay(series []float64, reduce func([]float64) float64) []float64 {
	nDays := len(series) / stepsPerDay
	out := make([]float64, nDays)
	for d := 0; d < nDays; d++ {
		out[d] = reduce(series[d*stepsPerDay : (d+1)*stepsPerDay])
	}
	return out
}

// PrecipitationHours counts, per day, the 6-hour steps with measurable
// precipitation.
func PrecipitationHours(precipitation []float64) []float64 {
	return reduceByDay(precipitation, func(day []float64) float64 {
		var n float64
		for _, p := range day {
			if p > 0.001 {
				n++
			}
		}
		return n
	})
}

// ShortwaveRadiationSum converts a day of 6-hourly mean fluxes [W/m²] into
// the daily energy sum [MJ/m²]: W/m² × 3600 s ÷ 10⁶ × 6 h per step.
func ShortwaveRadiationSum(shortwave []float64) []float64 {
	sums := DailySum(shortwave)
	for i := range sums {
		sums[i] *= 0.0036 * 6
	}
	return sums
}
