package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceAttributes(t *testing.T) {
	t.Run("temperature", func(t *testing.T) {
		v := Surface{Temperature2m}
		assert.Equal(t, "temperature_2m", v.OmFileName())
		assert.Equal(t, 20.0, v.Scalefactor())

		a, b, ok := v.MultiplyAdd(GFS025)
		require.True(t, ok)
		assert.Equal(t, 1.0, a)
		assert.Equal(t, -273.15, b)
		assert.False(t, v.SkipHour0(GFS025))
	})

	t.Run("precipitation rate scales by the time step", func(t *testing.T) {
		v := Surface{Precipitation}
		a, _, ok := v.MultiplyAdd(GFS025)
		require.True(t, ok)
		assert.Equal(t, 3600.0, a)

		a, _, ok = v.MultiplyAdd(GFS05Ensemble)
		require.True(t, ok)
		assert.Equal(t, 10800.0, a)
		assert.True(t, v.SkipHour0(GFS025))
	})

	t.Run("solar variables interpolate along the sun", func(t *testing.T) {
		assert.Equal(t, InterpolationSolarBackward, Surface{ShortwaveRadiation}.Interpolation())
		assert.Equal(t, InterpolationSolarBackward, Surface{DiffuseRadiation}.Interpolation())
		assert.Equal(t, InterpolationNearest, Surface{Precipitation}.Interpolation())
		assert.Equal(t, InterpolationHermite, Surface{Temperature2m}.Interpolation())
	})
}

func TestGribIndexName(t *testing.T) {
	tests := []struct {
		name     string
		variable Variable
		domain   Domain
		timestep int
		want     string
		found    bool
	}{
		{"temperature everywhere", Surface{Temperature2m}, GFS025, 0, ":TMP:2 m above ground:", true},
		{"gfs013 humidity is specific humidity", Surface{RelativeHumidity2m}, GFS013, 0, ":SPFH:2 m above ground:", true},
		{"gfs025 humidity is direct", Surface{RelativeHumidity2m}, GFS025, 0, ":RH:2 m above ground:", true},
		{"hrrr mslp spelling", Surface{PressureMSL}, HRRRConus, 0, ":MSLMA:mean sea level:", true},
		{"diffuse only on hrrr", Surface{DiffuseRadiation}, GFS025, 0, "", false},
		{"diffuse subhourly carries the step", Surface{DiffuseRadiation}, HRRRConus15Min, 45, ":VDDSF:surface:45 min fcst:", true},
		{"probability is derived", Surface{PrecipitationProbability}, GFS025Ensemble, 0, "", false},
		{"pressure level spelling", Pressure{PressureTemperature, 850}, GFS025, 0, ":TMP:850 mb:", true},
		{"level absent from product", Pressure{PressureTemperature, 850}, HRRRConus15Min, 0, "", false},
		{"vertical velocity", Pressure{PressureVerticalVelocity, 500}, HRRRConus, 0, ":VVEL:500 mb:", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := tt.variable.GribIndexName(tt.domain, tt.timestep)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, sel)
		})
	}
}

func TestVariableOrdering(t *testing.T) {
	t.Run("gfs013 caches prerequisites before humidity", func(t *testing.T) {
		vars := GFS013.SurfaceVariables()
		idx := map[string]int{}
		for i, v := range vars {
			idx[v.OmFileName()] = i
		}
		assert.Less(t, idx["temperature_2m"], idx["relative_humidity_2m"])
		assert.Less(t, idx["pressure_msl"], idx["relative_humidity_2m"])
	})

	t.Run("temperature precedes vertical velocity per level", func(t *testing.T) {
		vars := HRRRConus.PressureVariables()
		lastTemperature := -1
		for i, v := range vars {
			p := v.(Pressure)
			switch p.Kind {
			case PressureTemperature:
				lastTemperature = i
			case PressureVerticalVelocity:
				require.Greater(t, i, lastTemperature)
				assert.Equal(t, vars[lastTemperature].(Pressure).Level, p.Level)
			}
		}
	})
}

func TestKeepInMemoryAndCacheOnly(t *testing.T) {
	assert.True(t, KeepInMemory(GFS013, Surface{Temperature2m}))
	assert.True(t, KeepInMemory(GFS013, Surface{PressureMSL}))
	assert.False(t, KeepInMemory(GFS025, Surface{Temperature2m}))
	assert.True(t, KeepInMemory(HRRRConus, Pressure{PressureTemperature, 500}))
	assert.False(t, KeepInMemory(HRRRConus, Pressure{PressureWindU, 500}))

	assert.True(t, CacheOnly(GFS013, Surface{PressureMSL}))
	assert.False(t, CacheOnly(GFS025, Surface{PressureMSL}))
}

func TestPressureOmFileName(t *testing.T) {
	assert.Equal(t, "temperature_850hPa", Pressure{PressureTemperature, 850}.OmFileName())
	assert.Equal(t, "vertical_velocity_500hPa", Pressure{PressureVerticalVelocity, 500}.OmFileName())
}

func TestVariablesLevelFilter(t *testing.T) {
	both := GFS025.Variables(false, false)
	surface := GFS025.Variables(true, false)
	upper := GFS025.Variables(false, true)

	assert.Equal(t, len(both), len(surface)+len(upper))
	for _, v := range surface {
		_, ok := v.(Surface)
		assert.True(t, ok)
	}
	for _, v := range upper {
		_, ok := v.(Pressure)
		assert.True(t, ok)
	}
}
