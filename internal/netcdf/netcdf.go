// Package netcdf writes staged frames as NetCDF files for offline
// inspection. Debug-only surface; the query path never reads these.
package netcdf

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
)

// Dump writes a (time, y, x) variable with one record per staged frame.
func Dump(path, variable string, frames [][]float64, ny, nx int) error {
	if len(frames) == 0 {
		return fmt.Errorf("netcdf: no frames to dump for %s", variable)
	}

	h := cdf.NewHeader([]string{"time", "y", "x"}, []int{len(frames), ny, nx})
	h.AddVariable(variable, []string{"time", "y", "x"}, []float32{0})
	h.AddAttribute(variable, "grid", fmt.Sprintf("(%d, %d)", ny, nx))
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("netcdf: header for %s: %v", variable, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("netcdf: create %s: %w", path, err)
	}
	defer ff.Close()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("netcdf: initialise %s: %w", path, err)
	}

	for i, frame := range frames {
		if len(frame) != ny*nx {
			return fmt.Errorf("netcdf: frame %d holds %d cells, grid wants %d", i, len(frame), ny*nx)
		}
		buf := make([]float32, len(frame))
		for j, v := range frame {
			buf[j] = float32(v)
		}
		w := f.Writer(variable, []int{i, 0, 0}, []int{i + 1, ny, nx})
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("netcdf: write frame %d of %s: %w", i, variable, err)
		}
	}
	return nil
}
