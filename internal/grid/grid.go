// Package grid describes the horizontal geometry of a forecast product and
// provides the frame-level mutations applied to decoded fields before they
// are persisted.
package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/ctessum/sparse"
)

// Projection converts a flat cell index into a WGS-84 coordinate pair.
type Projection interface {
	Coord(index int) (lat, lon float64)
}

// Grid is the horizontal layout of one forecast product.
type Grid struct {
	Nx, Ny int
	// IsGlobal marks grids delivered as 0..360 longitude starting at the
	// prime meridian with latitudes ordered north to south. Such frames are
	// rotated and flipped into -180..180 / south-to-north order on ingest.
	IsGlobal   bool
	Projection Projection
}

// Count returns the number of cells in the grid.
func (g Grid) Count() int { return g.Nx * g.Ny }

// NewFrame allocates a zeroed (ny, nx) frame for this grid.
func (g Grid) NewFrame() *sparse.DenseArray {
	return sparse.ZerosDense(g.Ny, g.Nx)
}

// Regular is an equally spaced latitude/longitude grid. LatMin/LonMin locate
// the first cell after projection normalisation (south-west corner).
type Regular struct {
	Nx, Ny         int
	LatMin, LonMin float64
	DLat, DLon     float64
}

// Coord implements Projection.
func (r Regular) Coord(index int) (lat, lon float64) {
	y := index / r.Nx
	x := index % r.Nx
	return r.LatMin + float64(y)*r.DLat, r.LonMin + float64(x)*r.DLon
}

// LambertConformal is the conic projection used by the HRRR CONUS products.
// Cell positions are inverted from projection-plane coordinates back to
// latitude and longitude.
type LambertConformal struct {
	Nx, Ny     int
	Lat0, Lon0 float64 // projection origin
	Lat1, Lat2 float64 // standard parallels
	DxMeters   float64
	LatFirst   float64 // coordinate of cell (0, 0)
	LonFirst   float64

	once       sync.Once
	radius     float64
	n, f, rho0 float64
	x0, y0     float64
}

const earthRadius = 6371229.0

func (l *LambertConformal) init() {
	l.radius = earthRadius
	φ1 := l.Lat1 * math.Pi / 180
	φ2 := l.Lat2 * math.Pi / 180
	φ0 := l.Lat0 * math.Pi / 180
	if φ1 == φ2 {
		l.n = math.Sin(φ1)
	} else {
		l.n = math.Log(math.Cos(φ1)/math.Cos(φ2)) /
			math.Log(math.Tan(math.Pi/4+φ2/2)/math.Tan(math.Pi/4+φ1/2))
	}
	l.f = math.Cos(φ1) * math.Pow(math.Tan(math.Pi/4+φ1/2), l.n) / l.n
	l.rho0 = l.f / math.Pow(math.Tan(math.Pi/4+φ0/2), l.n)

	// Locate cell (0,0) on the projection plane.
	l.x0, l.y0 = l.forward(l.LatFirst, l.LonFirst)
}

func (l *LambertConformal) forward(lat, lon float64) (x, y float64) {
	φ := lat * math.Pi / 180
	λ := lon * math.Pi / 180
	λ0 := l.Lon0 * math.Pi / 180
	rho := l.f / math.Pow(math.Tan(math.Pi/4+φ/2), l.n)
	θ := l.n * (λ - λ0)
	return rho * math.Sin(θ), l.rho0 - rho*math.Cos(θ)
}

// Coord implements Projection. Safe for concurrent use.
func (l *LambertConformal) Coord(index int) (lat, lon float64) {
	l.once.Do(l.init)
	iy := index / l.Nx
	ix := index % l.Nx
	dx := l.DxMeters / l.radius
	x := l.x0 + float64(ix)*dx
	y := l.y0 + float64(iy)*dx

	rho := math.Sqrt(x*x + (l.rho0-y)*(l.rho0-y))
	if l.n < 0 {
		rho = -rho
	}
	θ := math.Atan2(x, l.rho0-y)
	φ := 2*math.Atan(math.Pow(l.f/rho, 1/l.n)) - math.Pi/2
	λ := l.Lon0*math.Pi/180 + θ/l.n

	lat = φ * 180 / math.Pi
	lon = λ * 180 / math.Pi
	if lon > 180 {
		lon -= 360
	}
	return lat, lon
}

// Shift180LongitudeAndFlipLatitude rotates the x axis by nx/2 and reverses the
// row order in place, converting a 0..360 north-to-south global frame into
// -180..180 south-to-north. Applying it twice restores the original frame.
func Shift180LongitudeAndFlipLatitude(frame *sparse.DenseArray) error {
	if len(frame.Shape) != 2 {
		return fmt.Errorf("grid: expected 2-D frame, got shape %v", frame.Shape)
	}
	ny, nx := frame.Shape[0], frame.Shape[1]
	half := nx / 2
	out := make([]float64, len(frame.Elements))
	for y := 0; y < ny; y++ {
		srcRow := frame.Elements[y*nx : (y+1)*nx]
		dstRow := out[(ny-1-y)*nx : (ny-y)*nx]
		copy(dstRow, srcRow[half:])
		copy(dstRow[nx-half:], srcRow[:half])
	}
	copy(frame.Elements, out)
	return nil
}
