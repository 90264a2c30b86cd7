package scheduler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/gribidx"
	"github.com/couchcryptid/forecast-ingest/internal/grid"
)

var (
	// ErrUnsupportedStepType flags an accumulated field reaching the
	// pipeline, which means the catalogue selected a product it cannot
	// normalise.
	ErrUnsupportedStepType = errors.New("scheduler: accumulated stepType not supported")

	// ErrMissingPrerequisite flags a conversion whose input frame was not
	// cached earlier in the same pass, which means the catalogue's selector
	// order is wrong.
	ErrMissingPrerequisite = errors.New("scheduler: conversion prerequisite not cached")
)

// Physical constants for the vertical-velocity conversion.
const (
	gravity     = 9.80665
	gasConstant = 287.058
)

// converter applies the semantic normalisation chain to each decoded frame:
// projection, deaveraging, humidity and vertical-velocity conversion, solar
// averaging, unit rescale, prerequisite caching. Deaverage state spans the
// whole run; the prerequisite cache is scoped to one (hour, member) pass.
type converter struct {
	domain    domain.Domain
	deaverage map[string]deaverageState
	cache     map[string][]float64
}

type deaverageState struct {
	stepEnd int
	values  []float64
}

func newConverter(d domain.Domain) *converter {
	return &converter{
		domain:    d,
		deaverage: map[string]deaverageState{},
		cache:     map[string][]float64{},
	}
}

// beginPass resets the prerequisite cache at the start of one (hour, member)
// chain.
func (c *converter) beginPass() {
	c.cache = map[string][]float64{}
}

// process runs one frame through the conversion chain. The returned persist
// flag is false for cache-only variables. stepDuration is the averaging
// window for solar fluxes (the product time step).
func (c *converter) process(v domain.Variable, member int, validTime time.Time, stepDuration time.Duration, msg gribidx.Message) (values []float64, persist bool, err error) {
	g := c.domain.Grid()
	if g.IsGlobal {
		if err := grid.Shift180LongitudeAndFlipLatitude(msg.Frame); err != nil {
			return nil, false, err
		}
	}
	values = msg.Frame.Elements

	switch msg.Attributes.StepType {
	case "avg":
		values, err = c.applyDeaverage(v, member, msg.Attributes.StepRange, values)
		if err != nil {
			return nil, false, err
		}
	case "acc", "accum":
		return nil, false, fmt.Errorf("%w: %s (%s)", ErrUnsupportedStepType, v.OmFileName(), msg.Attributes.StepRange)
	}

	if err := c.applyHumidityConversion(v, msg.Attributes.ShortName, values); err != nil {
		return nil, false, err
	}
	if err := c.applyVerticalVelocityConversion(v, msg.Attributes.ShortName, values); err != nil {
		return nil, false, err
	}
	c.applySolarAveraging(v, validTime, stepDuration, values)

	if a, b, ok := v.MultiplyAdd(c.domain); ok {
		for i, x := range values {
			values[i] = x*a + b
		}
	}

	if domain.KeepInMemory(c.domain, v) {
		kept := make([]float64, len(values))
		copy(kept, values)
		c.cache[v.OmFileName()] = kept
	}
	if domain.CacheOnly(c.domain, v) {
		return values, false, nil
	}
	return values, true, nil
}

// applyDeaverage converts running means into per-interval means. A field
// averaged over (a, b] with a held predecessor averaged over (a, p], p > a,
// yields the mean over (p, b]. The first segment of each repeating section
// passes through unchanged.
func (c *converter) applyDeaverage(v domain.Variable, member int, stepRange string, values []float64) ([]float64, error) {
	a, b, err := parseStepRange(stepRange)
	if err != nil {
		return nil, fmt.Errorf("scheduler: deaverage %s: %w", v.OmFileName(), err)
	}

	key := fmt.Sprintf("%s|%d", v.OmFileName(), member)
	prev, held := c.deaverage[key]

	raw := make([]float64, len(values))
	copy(raw, values)
	c.deaverage[key] = deaverageState{stepEnd: b, values: raw}

	if !held || prev.stepEnd == a || prev.stepEnd <= a {
		return values, nil
	}

	p := float64(prev.stepEnd)
	fa, fb := float64(a), float64(b)
	out := make([]float64, len(values))
	for i, cur := range values {
		out[i] = (cur*(fb-fa) - prev.values[i]*(p-fa)) / (fb - p)
	}
	return out, nil
}

// parseStepRange splits "a-b"; a single hour "h" is treated as (0, h].
func parseStepRange(s string) (a, b int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) == 1 {
		b, err = strconv.Atoi(parts[0])
		return 0, b, err
	}
	a, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	b, err = strconv.Atoi(parts[1])
	return a, b, err
}

// applyHumidityConversion derives 2 m relative humidity from specific
// humidity on products whose flux grid lacks RH. Requires 2 m temperature
// [°C] and surface pressure [hPa] cached earlier in the pass.
func (c *converter) applyHumidityConversion(v domain.Variable, shortName string, values []float64) error {
	s, ok := v.(domain.Surface)
	if !ok || s.Kind != domain.RelativeHumidity2m || shortName != "2sh" {
		return nil
	}
	temperature, okT := c.cache[domain.Surface{Kind: domain.Temperature2m}.OmFileName()]
	pressure, okP := c.cache[domain.Surface{Kind: domain.PressureMSL}.OmFileName()]
	if !okT || !okP {
		return fmt.Errorf("%w: relative_humidity_2m needs temperature_2m and pressure_msl", ErrMissingPrerequisite)
	}

	for i, q := range values {
		q *= 1000 // kg/kg to g/kg
		t := temperature[i]
		p := pressure[i]
		// Tetens saturation vapour pressure over water [hPa].
		es := 6.112 * math.Exp(17.67*t/(t+243.5))
		e := q * p / (622 + 0.378*q)
		rh := 100 * e / es
		values[i] = math.Max(0, math.Min(100, rh))
	}
	return nil
}

// applyVerticalVelocityConversion turns pressure vertical velocity ω [Pa/s]
// into geometric velocity w [m/s] using the cached temperature at the same
// level: w = −ω·R·T / (p·g).
func (c *converter) applyVerticalVelocityConversion(v domain.Variable, shortName string, values []float64) error {
	p, ok := v.(domain.Pressure)
	if !ok || p.Kind != domain.PressureVerticalVelocity || shortName != "w" {
		return nil
	}
	tempName := domain.Pressure{Kind: domain.PressureTemperature, Level: p.Level}.OmFileName()
	temperature, okT := c.cache[tempName]
	if !okT {
		return fmt.Errorf("%w: vertical_velocity at %d hPa needs %s", ErrMissingPrerequisite, p.Level, tempName)
	}

	pressurePa := float64(p.Level) * 100
	for i, omega := range values {
		kelvin := temperature[i] + 273.15
		values[i] = -omega * gasConstant * kelvin / (pressurePa * gravity)
	}
	return nil
}

// applySolarAveraging converts instantaneous short-wave fluxes into
// backwards averages over the preceding step by dividing by the ratio of the
// instantaneous to the interval-mean zenith cosine. Cells with a factor
// below 0.05 stay untouched; near sunrise and sunset the ratio is dominated
// by noise.
func (c *converter) applySolarAveraging(v domain.Variable, validTime time.Time, stepDuration time.Duration, values []float64) {
	s, ok := v.(domain.Surface)
	if !ok {
		return
	}
	switch c.domain {
	case domain.HRRRConus:
		if s.Kind != domain.ShortwaveRadiation && s.Kind != domain.DiffuseRadiation {
			return
		}
	case domain.HRRRConus15Min:
		if s.Kind != domain.DiffuseRadiation {
			return
		}
	default:
		return
	}

	factors := grid.RadiationFactors(c.domain.Grid().Projection, 0, len(values), validTime, stepDuration)
	for i, f := range factors {
		if f < 0.05 {
			continue
		}
		values[i] /= f
	}
}
