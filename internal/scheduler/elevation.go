package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/forecast-ingest/internal/grid"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
)

// ErrCorruptElevation flags an elevation bootstrap whose source file lacked
// the terrain height or land mask message.
var ErrCorruptElevation = errors.New("scheduler: elevation download incomplete")

// seaLevelSentinel marks sea cells in the elevation file.
const seaLevelSentinel = -999

// DownloadElevation writes the domain's one-off surface elevation file:
// terrain height with sea cells (land mask 0) replaced by the sentinel. A
// file already on disk is left alone.
func (s *Scheduler) DownloadElevation(ctx context.Context) error {
	d := s.opts.Domain
	path := d.SurfaceElevationPath(s.opts.DataDir)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	g := d.Grid()
	selectors := []string{":HGT:surface:", ":LAND:surface:"}
	url := s.gribURL(0, 0)
	messages, err := s.client.DownloadIndexed(ctx, url, selectors, g.Ny, g.Nx, d.WaitAfterLastModified())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptElevation, err)
	}
	if len(messages) < 2 {
		return fmt.Errorf("%w: got %d of 2 messages", ErrCorruptElevation, len(messages))
	}

	var height, landmask []float64
	for _, msg := range messages {
		if g.IsGlobal {
			if err := grid.Shift180LongitudeAndFlipLatitude(msg.Frame); err != nil {
				return err
			}
		}
		switch msg.Selector {
		case ":HGT:surface:":
			height = msg.Frame.Elements
		case ":LAND:surface:":
			landmask = msg.Frame.Elements
		}
	}
	if height == nil || landmask == nil {
		return fmt.Errorf("%w: missing height or land mask", ErrCorruptElevation)
	}

	elevation := maskSeaCells(height, landmask)

	if _, err := omstore.WriteSpaceFrame(s.codec, path, elevation, 1, spaceFileBlockCells); err != nil {
		return fmt.Errorf("scheduler: write elevation file: %w", err)
	}
	s.logger.Info("surface elevation written", "path", path, "cells", len(elevation))
	return nil
}

// maskSeaCells replaces terrain height with the sea sentinel wherever the
// land mask is zero.
func maskSeaCells(height, landmask []float64) []float64 {
	elevation := make([]float64, len(height))
	for i := range height {
		if landmask[i] == 0 {
			elevation[i] = seaLevelSentinel
			continue
		}
		elevation[i] = height[i]
	}
	return elevation
}
