package domain

import (
	"fmt"
)

// Interpolation selects how gaps in the time axis are filled at transpose
// time.
type Interpolation int

const (
	InterpolationLinear Interpolation = iota
	InterpolationNearest
	InterpolationHermite
	// InterpolationSolarBackward distributes an interval-averaged solar flux
	// across finer steps following the zenith-cosine curve.
	InterpolationSolarBackward
)

// SurfaceKind enumerates single-level variables.
type SurfaceKind int

const (
	Temperature2m SurfaceKind = iota
	RelativeHumidity2m
	PressureMSL
	Precipitation
	ShortwaveRadiation
	DiffuseRadiation
	WindU10m
	WindV10m
	WindGusts10m
	CloudCover
	CAPE
	PrecipitationProbability
)

// PressureKind enumerates variables ingested on pressure levels.
type PressureKind int

const (
	PressureTemperature PressureKind = iota
	PressureWindU
	PressureWindV
	PressureGeopotentialHeight
	PressureRelativeHumidity
	PressureVerticalVelocity
)

// Variable is the two-case sum over surface and pressure-level fields. All
// catalogue attributes hang off this interface.
type Variable interface {
	// OmFileName is the stable name used for space files and column-store
	// files.
	OmFileName() string
	// Scalefactor quantises values before compression: stored = round(x·sf).
	Scalefactor() float64
	// Interpolation selects the transpose-time gap fill.
	Interpolation() Interpolation
	// MultiplyAdd returns a linear unit conversion x·a+b, if any.
	MultiplyAdd(d Domain) (a, b float64, ok bool)
	// SkipHour0 reports whether the variable is undefined at forecast hour 0.
	SkipHour0(d Domain) bool
	// GribIndexName returns the index-line selector for this variable on the
	// given product, or false when the product does not carry it. timestep
	// is the sub-hourly offset in minutes for 15-minute products, 0 otherwise.
	GribIndexName(d Domain, timestep int) (string, bool)
}

// Surface is a single-level variable.
type Surface struct {
	Kind SurfaceKind
}

// Pressure is a variable on one pressure level [hPa].
type Pressure struct {
	Kind  PressureKind
	Level int
}

var surfaceFileNames = map[SurfaceKind]string{
	Temperature2m:            "temperature_2m",
	RelativeHumidity2m:       "relative_humidity_2m",
	PressureMSL:              "pressure_msl",
	Precipitation:            "precipitation",
	ShortwaveRadiation:       "shortwave_radiation",
	DiffuseRadiation:         "diffuse_radiation",
	WindU10m:                 "wind_u_component_10m",
	WindV10m:                 "wind_v_component_10m",
	WindGusts10m:             "wind_gusts_10m",
	CloudCover:               "cloud_cover",
	CAPE:                     "cape",
	PrecipitationProbability: "precipitation_probability",
}

func (s Surface) OmFileName() string { return surfaceFileNames[s.Kind] }

func (s Surface) Scalefactor() float64 {
	switch s.Kind {
	case Temperature2m:
		return 20
	case Precipitation:
		return 10
	case PressureMSL:
		return 10
	case WindU10m, WindV10m, WindGusts10m:
		return 10
	case CAPE:
		return 0.1
	default:
		return 1
	}
}

func (s Surface) Interpolation() Interpolation {
	switch s.Kind {
	case Precipitation, PrecipitationProbability:
		return InterpolationNearest
	case ShortwaveRadiation, DiffuseRadiation:
		return InterpolationSolarBackward
	case Temperature2m, PressureMSL:
		return InterpolationHermite
	default:
		return InterpolationLinear
	}
}

func (s Surface) MultiplyAdd(d Domain) (a, b float64, ok bool) {
	switch s.Kind {
	case Temperature2m:
		return 1, -273.15, true // K to °C
	case PressureMSL:
		return 0.01, 0, true // Pa to hPa
	case Precipitation:
		// PRATE [kg m-2 s-1] to accumulation [mm] over one time step.
		return float64(d.DtSeconds()), 0, true
	default:
		return 0, 0, false
	}
}

func (s Surface) SkipHour0(d Domain) bool {
	switch s.Kind {
	case Precipitation, ShortwaveRadiation, DiffuseRadiation, PrecipitationProbability:
		return true
	case WindGusts10m:
		return d == GFS025 || d == GFS013
	default:
		return false
	}
}

func (s Surface) GribIndexName(d Domain, timestep int) (string, bool) {
	var sel string
	switch s.Kind {
	case Temperature2m:
		sel = ":TMP:2 m above ground:"
	case RelativeHumidity2m:
		if d == GFS013 {
			// The flux grid only carries specific humidity; the pipeline
			// derives RH from it.
			sel = ":SPFH:2 m above ground:"
		} else {
			sel = ":RH:2 m above ground:"
		}
	case PressureMSL:
		switch d {
		case HRRRConus, HRRRConus15Min:
			sel = ":MSLMA:mean sea level:"
		case GFS013:
			sel = ":PRES:surface:"
		default:
			sel = ":PRMSL:mean sea level:"
		}
	case Precipitation:
		sel = ":PRATE:surface:"
	case ShortwaveRadiation:
		sel = ":DSWRF:surface:"
	case DiffuseRadiation:
		if d != HRRRConus && d != HRRRConus15Min {
			return "", false
		}
		sel = ":VDDSF:surface:"
	case WindU10m:
		sel = ":UGRD:10 m above ground:"
	case WindV10m:
		sel = ":VGRD:10 m above ground:"
	case WindGusts10m:
		sel = ":GUST:surface:"
	case CloudCover:
		sel = ":TCDC:entire atmosphere:"
	case CAPE:
		sel = ":CAPE:surface:"
	case PrecipitationProbability:
		// Derived by the ensemble aggregator, never downloaded directly.
		return "", false
	default:
		return "", false
	}
	if timestep > 0 {
		sel = sel + subHourlyStep(timestep)
	}
	return sel, true
}

// subHourlyStep matches the step column of 15-minute index lines,
// e.g. ":45 min fcst:".
func subHourlyStep(timestep int) string {
	return fmt.Sprintf("%d min fcst:", timestep)
}

var pressureShortNames = map[PressureKind]string{
	PressureTemperature:        "TMP",
	PressureWindU:              "UGRD",
	PressureWindV:              "VGRD",
	PressureGeopotentialHeight: "HGT",
	PressureRelativeHumidity:   "RH",
	PressureVerticalVelocity:   "VVEL",
}

var pressureFileNames = map[PressureKind]string{
	PressureTemperature:        "temperature",
	PressureWindU:              "wind_u_component",
	PressureWindV:              "wind_v_component",
	PressureGeopotentialHeight: "geopotential_height",
	PressureRelativeHumidity:   "relative_humidity",
	PressureVerticalVelocity:   "vertical_velocity",
}

func (p Pressure) OmFileName() string {
	return fmt.Sprintf("%s_%dhPa", pressureFileNames[p.Kind], p.Level)
}

func (p Pressure) Scalefactor() float64 {
	switch p.Kind {
	case PressureTemperature:
		return 20
	case PressureGeopotentialHeight:
		return 1
	case PressureVerticalVelocity:
		return 10
	default:
		return 10
	}
}

func (p Pressure) Interpolation() Interpolation {
	if p.Kind == PressureTemperature {
		return InterpolationHermite
	}
	return InterpolationLinear
}

func (p Pressure) MultiplyAdd(d Domain) (a, b float64, ok bool) {
	if p.Kind == PressureTemperature {
		return 1, -273.15, true
	}
	return 0, 0, false
}

func (p Pressure) SkipHour0(Domain) bool { return false }

func (p Pressure) GribIndexName(d Domain, timestep int) (string, bool) {
	if d == HRRRConus15Min || d == GFS013 {
		return "", false
	}
	found := false
	for _, l := range d.Levels() {
		if l == p.Level {
			found = true
			break
		}
	}
	if !found {
		return "", false
	}
	return fmt.Sprintf(":%s:%d mb:", pressureShortNames[p.Kind], p.Level), true
}

// SurfaceVariables lists the single-level variables ingested for a product,
// in prerequisite order: fields cached for later conversions (temperature,
// surface pressure) come before their consumers within one forecast-hour
// pass.
func (d Domain) SurfaceVariables() []Variable {
	switch d {
	case GFS013:
		return []Variable{
			Surface{Temperature2m},
			Surface{PressureMSL},
			Surface{RelativeHumidity2m},
			Surface{Precipitation},
			Surface{ShortwaveRadiation},
			Surface{WindU10m},
			Surface{WindV10m},
			Surface{WindGusts10m},
		}
	case HRRRConus:
		return []Variable{
			Surface{Temperature2m},
			Surface{RelativeHumidity2m},
			Surface{PressureMSL},
			Surface{Precipitation},
			Surface{ShortwaveRadiation},
			Surface{DiffuseRadiation},
			Surface{WindU10m},
			Surface{WindV10m},
			Surface{WindGusts10m},
			Surface{CloudCover},
			Surface{CAPE},
		}
	case HRRRConus15Min:
		return []Variable{
			Surface{Temperature2m},
			Surface{Precipitation},
			Surface{ShortwaveRadiation},
			Surface{DiffuseRadiation},
			Surface{WindU10m},
			Surface{WindV10m},
		}
	case GFS025Ensemble:
		return []Variable{
			Surface{Temperature2m},
			Surface{RelativeHumidity2m},
			Surface{Precipitation},
			Surface{WindU10m},
			Surface{WindV10m},
			Surface{CAPE},
		}
	case GFS05Ensemble:
		return []Variable{
			Surface{Temperature2m},
			Surface{RelativeHumidity2m},
			Surface{PressureMSL},
			Surface{Precipitation},
			Surface{WindU10m},
			Surface{WindV10m},
			Surface{CAPE},
		}
	default: // GFS025
		return []Variable{
			Surface{Temperature2m},
			Surface{RelativeHumidity2m},
			Surface{PressureMSL},
			Surface{Precipitation},
			Surface{ShortwaveRadiation},
			Surface{WindU10m},
			Surface{WindV10m},
			Surface{WindGusts10m},
			Surface{CloudCover},
			Surface{CAPE},
		}
	}
}

// PressureVariables lists the upper-level variables for a product across all
// of its levels, temperature first per level so the vertical-velocity
// conversion finds it cached.
func (d Domain) PressureVariables() []Variable {
	levels := d.Levels()
	if len(levels) == 0 {
		return nil
	}
	kinds := []PressureKind{
		PressureTemperature,
		PressureWindU,
		PressureWindV,
		PressureGeopotentialHeight,
		PressureRelativeHumidity,
	}
	withVelocity := d == HRRRConus || d == GFS05Ensemble
	var out []Variable
	for _, level := range levels {
		for _, k := range kinds {
			out = append(out, Pressure{Kind: k, Level: level})
		}
		if withVelocity {
			out = append(out, Pressure{Kind: PressureVerticalVelocity, Level: level})
		}
	}
	return out
}

// Variables returns the full ordered download list, filtered by the CLI's
// level selection flags.
func (d Domain) Variables(surfaceLevel, upperLevel bool) []Variable {
	if !surfaceLevel && !upperLevel {
		surfaceLevel, upperLevel = true, true
	}
	var out []Variable
	if surfaceLevel {
		out = append(out, d.SurfaceVariables()...)
	}
	if upperLevel {
		out = append(out, d.PressureVariables()...)
	}
	return out
}

// KeepInMemory reports whether a post-rescale copy of the variable must stay
// cached during one (hour, member) pass for downstream conversions.
func KeepInMemory(d Domain, v Variable) bool {
	switch vv := v.(type) {
	case Surface:
		if d == GFS013 {
			return vv.Kind == Temperature2m || vv.Kind == PressureMSL
		}
	case Pressure:
		if d == HRRRConus || d == GFS05Ensemble {
			return vv.Kind == PressureTemperature
		}
	}
	return false
}

// CacheOnly reports whether the variable exists purely as a conversion input
// and is never persisted.
func CacheOnly(d Domain, v Variable) bool {
	s, ok := v.(Surface)
	return ok && d == GFS013 && s.Kind == PressureMSL
}
