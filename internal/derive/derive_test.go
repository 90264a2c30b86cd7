package derive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindSpeed(t *testing.T) {
	got := WindSpeed([]float64{3, 0, -3}, []float64{4, 0, -4})
	assert.InDeltaSlice(t, []float64{5, 0, 5}, got, 1e-9)
}

func TestWindDirection(t *testing.T) {
	tests := []struct {
		name string
		u, v float64
		want float64
	}{
		{"northerly", 0, -1, 0},
		{"easterly", -1, 0, 90},
		{"southerly", 0, 1, 180},
		{"westerly", 1, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WindDirection([]float64{tt.u}, []float64{tt.v})
			assert.InDelta(t, tt.want, got[0], 1e-9)
			assert.GreaterOrEqual(t, got[0], 0.0)
			assert.Less(t, got[0], 360.0)
		})
	}
}

func TestRelativeHumidityFromDewpoint(t *testing.T) {
	t.Run("dewpoint equal to temperature is saturation", func(t *testing.T) {
		got := RelativeHumidityFromDewpoint([]float64{15}, []float64{15})
		assert.InDelta(t, 100, got[0], 1e-9)
	})

	t.Run("drier air reads lower", func(t *testing.T) {
		got := RelativeHumidityFromDewpoint([]float64{25}, []float64{10})
		assert.Greater(t, got[0], 30.0)
		assert.Less(t, got[0], 50.0)
	})
}

func TestDailyAggregations(t *testing.T) {
	// Two days of 6-hourly values.
	series := []float64{1, 4, 2, 3, 10, 8, 12, 6}

	assert.Equal(t, []float64{4, 12}, DailyMax(series))
	assert.Equal(t, []float64{1, 6}, DailyMin(series))
	assert.Equal(t, []float64{10, 36}, DailySum(series))
}

func TestPrecipitationHours(t *testing.T) {
	series := []float64{0, 0.5, 0.0005, 2, 0, 0, 0, 0}
	got := PrecipitationHours(series)
	assert.Equal(t, []float64{2, 0}, got)
}

func TestShortwaveRadiationSum(t *testing.T) {
	// A constant 100 W/m² day: 100·4·0.0036·6 = 8.64 MJ/m².
	series := []float64{100, 100, 100, 100}
	got := ShortwaveRadiationSum(series)
	assert.InDelta(t, 8.64, got[0], 1e-9)
}

func TestPartialDayTruncated(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5, 6}
	assert.Len(t, DailyMax(series), 1)
}

func TestWindSpeedNaNPropagates(t *testing.T) {
	got := WindSpeed([]float64{math.NaN()}, []float64{1})
	assert.True(t, math.IsNaN(got[0]))
}
