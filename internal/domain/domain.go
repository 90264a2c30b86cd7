// Package domain holds the static catalogue of forecast products and
// variables this service ingests: grid geometry, run cadence, forecast-hour
// schedules, ensemble membership, and the per-variable attributes that drive
// the download and conversion pipeline.
package domain

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/couchcryptid/forecast-ingest/internal/grid"
)

// Domain enumerates the supported forecast products.
type Domain int

const (
	GFS025 Domain = iota
	GFS013
	GFS025Ensemble
	GFS05Ensemble
	HRRRConus
	HRRRConus15Min
)

var domainNames = map[string]Domain{
	"gfs025":           GFS025,
	"gfs013":           GFS013,
	"gfs025_ensemble":  GFS025Ensemble,
	"gfs05_ensemble":   GFS05Ensemble,
	"hrrr_conus":       HRRRConus,
	"hrrr_conus_15min": HRRRConus15Min,
}

// ParseDomain resolves a CLI domain name.
func ParseDomain(name string) (Domain, error) {
	d, ok := domainNames[name]
	if !ok {
		return 0, fmt.Errorf("domain: unknown domain %q", name)
	}
	return d, nil
}

func (d Domain) String() string {
	for name, v := range domainNames {
		if v == d {
			return name
		}
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

var hrrrProjection = &grid.LambertConformal{
	Nx: 1799, Ny: 1059,
	Lat0: 38.5, Lon0: -97.5,
	Lat1: 38.5, Lat2: 38.5,
	DxMeters: 3000,
	LatFirst: 21.138123, LonFirst: -122.719528,
}

var gridGFS025 = grid.Grid{Nx: 1440, Ny: 721, IsGlobal: true,
	Projection: grid.Regular{Nx: 1440, Ny: 721, LatMin: -90, LonMin: -180, DLat: 0.25, DLon: 0.25}}

var gridGFS013 = grid.Grid{Nx: 3072, Ny: 1536, IsGlobal: true,
	Projection: grid.Regular{Nx: 3072, Ny: 1536, LatMin: -89.91, LonMin: -180, DLat: 0.11714935, DLon: 0.1171875}}

var gridGFS05 = grid.Grid{Nx: 720, Ny: 361, IsGlobal: true,
	Projection: grid.Regular{Nx: 720, Ny: 361, LatMin: -90, LonMin: -180, DLat: 0.5, DLon: 0.5}}

var gridHRRR = grid.Grid{Nx: 1799, Ny: 1059, Projection: hrrrProjection}

// Grid returns the product's horizontal geometry.
func (d Domain) Grid() grid.Grid {
	switch d {
	case GFS025, GFS025Ensemble:
		return gridGFS025
	case GFS013:
		return gridGFS013
	case GFS05Ensemble:
		return gridGFS05
	default:
		return gridHRRR
	}
}

// DtSeconds is the native time step of the stored series.
func (d Domain) DtSeconds() int {
	switch d {
	case HRRRConus15Min:
		return 900
	case GFS025Ensemble, GFS05Ensemble:
		return 3 * 3600
	default:
		return 3600
	}
}

// RunsPerDay is the product's scheduled run cadence.
func (d Domain) RunsPerDay() int {
	switch d {
	case HRRRConus, HRRRConus15Min:
		return 24
	default:
		return 4
	}
}

// EnsembleMembers returns the member count; 1 for deterministic products.
func (d Domain) EnsembleMembers() int {
	switch d {
	case GFS025Ensemble, GFS05Ensemble:
		return 31
	default:
		return 1
	}
}

// Levels lists the pressure levels [hPa] ingested for upper-level variables.
func (d Domain) Levels() []int {
	switch d {
	case HRRRConus:
		return []int{250, 300, 400, 500, 600, 700, 850, 925, 1000}
	case GFS05Ensemble:
		return []int{200, 250, 500, 700, 850, 925, 1000}
	case GFS025, GFS013:
		return []int{10, 20, 30, 50, 70, 100, 150, 200, 250, 300, 400, 500, 600, 700, 850, 925, 1000}
	default:
		return nil
	}
}

// DeadlineHours bounds how long a run's download may keep retrying.
func (d Domain) DeadlineHours() int {
	switch d {
	case HRRRConus, HRRRConus15Min:
		return 2
	default:
		return 4
	}
}

// WaitAfterLastModified is how long the index may stall without progress
// before the run is declared dead.
func (d Domain) WaitAfterLastModified() time.Duration {
	switch d {
	case HRRRConus, HRRRConus15Min:
		return 5 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// ForecastHours returns the ordered forecast-hour schedule for one run.
// secondFlush extends products whose late hours are published in a second
// wave (GFS05 ensemble runs out to hour 840).
func (d Domain) ForecastHours(runHour int, secondFlush bool) []int {
	switch d {
	case GFS025, GFS013:
		return concatHours(stepHours(0, 120, 1), stepHours(123, 384, 3))
	case GFS025Ensemble:
		return stepHours(0, 240, 3)
	case GFS05Ensemble:
		if secondFlush {
			return concatHours(stepHours(390, 840, 6))
		}
		return concatHours(stepHours(0, 384, 3))
	case HRRRConus:
		if runHour%6 == 0 {
			return stepHours(0, 48, 1)
		}
		return stepHours(0, 18, 1)
	case HRRRConus15Min:
		return stepHours(0, 18, 1)
	default:
		return nil
	}
}

func stepHours(from, to, step int) []int {
	var hours []int
	for h := from; h <= to; h += step {
		hours = append(hours, h)
	}
	return hours
}

func concatHours(lists ...[]int) []int {
	var out []int
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// DownloadDirectory is where per-hour space files for this product live.
func (d Domain) DownloadDirectory(base string) string {
	return filepath.Join(base, d.String())
}

// ColumnStoreRoot is where the product's chunked time-series files live.
func (d Domain) ColumnStoreRoot(base string) string {
	return filepath.Join(base, d.String(), "store")
}

// SurfaceElevationPath is the product's one-off elevation file.
func (d Domain) SurfaceElevationPath(base string) string {
	return filepath.Join(base, d.String(), "surface_elevation.om")
}

// NomadsBase is the NCEP production root. Tests swap it for a local server
// via the scheduler's BaseURL option.
const NomadsBase = "https://nomads.ncep.noaa.gov/pub/data/nccf/com"

// GribURL builds the per-hour GRIB file URL for one member. The sidecar
// index lives at the same URL with ".idx" appended.
func (d Domain) GribURL(run Run, forecastHour, member int) string {
	day := run.Format("20060102")
	hh := fmt.Sprintf("%02d", run.Hour())
	switch d {
	case GFS025:
		return fmt.Sprintf("%s/gfs/prod/gfs.%s/%s/atmos/gfs.t%sz.pgrb2.0p25.f%03d",
			NomadsBase, day, hh, hh, forecastHour)
	case GFS013:
		return fmt.Sprintf("%s/gfs/prod/gfs.%s/%s/atmos/gfs.t%sz.sfluxgrbf%03d.grib2",
			NomadsBase, day, hh, hh, forecastHour)
	case GFS025Ensemble:
		return fmt.Sprintf("%s/gens/prod/gefs.%s/%s/atmos/pgrb2sp25/%s.t%sz.pgrb2s.0p25.f%03d",
			NomadsBase, day, hh, memberName(member), hh, forecastHour)
	case GFS05Ensemble:
		return fmt.Sprintf("%s/gens/prod/gefs.%s/%s/atmos/pgrb2ap5/%s.t%sz.pgrb2a.0p50.f%03d",
			NomadsBase, day, hh, memberName(member), hh, forecastHour)
	case HRRRConus:
		return fmt.Sprintf("%s/hrrr/prod/hrrr.%s/conus/hrrr.t%sz.wrfprsf%02d.grib2",
			NomadsBase, day, hh, forecastHour)
	case HRRRConus15Min:
		return fmt.Sprintf("%s/hrrr/prod/hrrr.%s/conus/hrrr.t%sz.wrfsubhf%02d.grib2",
			NomadsBase, day, hh, forecastHour)
	default:
		return ""
	}
}

// memberName follows the GEFS naming: control is gec00, perturbed are gep01..gep30.
func memberName(member int) string {
	if member == 0 {
		return "gec00"
	}
	return fmt.Sprintf("gep%02d", member)
}
