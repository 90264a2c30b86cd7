package scheduler

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/grid"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
)

// precipitationThresholdMM is the per-window accumulation a member must reach
// to count toward the precipitation probability.
const precipitationThresholdMM = 0.3

// RunPrecipitationProbability derives the precipitation_probability surface
// variable from the 0.25° ensemble's accumulated precipitation. It is a
// separate pass outside the semantic chain: APCP arrives cumulatively over
// repeating 3-hour windows, so per-member segments are differenced against
// the previous window before thresholding.
func (s *Scheduler) RunPrecipitationProbability(ctx context.Context) error {
	d := s.opts.Domain
	if d != domain.GFS025Ensemble {
		return nil
	}
	if len(s.opts.OnlyVariables) > 0 && !slices.Contains(s.opts.OnlyVariables, "precipitation_probability") {
		return nil
	}

	hours := d.ForecastHours(s.opts.Run.Hour(), s.opts.SecondFlush)
	if s.opts.MaxForecastHour > 0 {
		filtered := hours[:0:0]
		for _, h := range hours {
			if h <= s.opts.MaxForecastHour {
				filtered = append(filtered, h)
			}
		}
		hours = filtered
	}

	v := domain.Surface{Kind: domain.PrecipitationProbability}
	g := d.Grid()
	members := d.EnsembleMembers()
	selector := ":APCP:surface:"

	// Per-member state: the previous cumulative frame and its window end.
	prevFrames := make([][]float64, members)
	prevEnd := make([]int, members)

	for _, h := range hours {
		if h == 0 {
			continue
		}
		stepSeconds := h * 3600
		path := s.spaceFilePath(v, 0, stepSeconds)
		if s.opts.SkipExisting {
			if handle, err := omstore.OpenSpaceFile(s.codec, path); err == nil {
				s.register(v, 0, stepSeconds, handle)
				s.metrics.SpaceFilesReused.Inc()
				continue
			}
		}

		counts := make([]int, g.Count())
		for member := 0; member < members; member++ {
			url := s.gribURL(h, member)
			messages, err := s.client.DownloadIndexed(ctx, url, []string{selector}, g.Ny, g.Nx, d.WaitAfterLastModified())
			if err != nil {
				s.metrics.DownloadErrors.Inc()
				return fmt.Errorf("scheduler: precipitation probability hour %d member %d: %w", h, member, err)
			}
			msg := messages[0]
			if g.IsGlobal {
				if err := grid.Shift180LongitudeAndFlipLatitude(msg.Frame); err != nil {
					return err
				}
			}
			s.metrics.MessagesDownloaded.Inc()

			cumulative := msg.Frame.Elements
			segment := segmentFromCumulative(cumulative, prevFrames[member], prevEnd[member], h)
			for i, p := range segment {
				if p >= precipitationThresholdMM {
					counts[i]++
				}
			}

			kept := make([]float64, len(cumulative))
			copy(kept, cumulative)
			prevFrames[member] = kept
			prevEnd[member] = h
		}

		probability := probabilityFromCounts(counts, members)

		handle, err := omstore.WriteSpaceFrame(s.codec, path, probability, v.Scalefactor(), spaceFileBlockCells)
		if err != nil {
			return fmt.Errorf("scheduler: stage precipitation probability hour %d: %w", h, err)
		}
		s.metrics.SpaceFilesWritten.Inc()
		s.ready.Store(true)
		s.register(v, 0, stepSeconds, handle)
	}
	return nil
}

// segmentFromCumulative isolates one 3-hour precipitation window. APCP
// accumulates across repeating windows; when the previous frame closed the
// adjacent window, the difference is this window's share, otherwise the
// cumulative frame is the segment itself.
func segmentFromCumulative(cumulative, prev []float64, prevEnd, h int) []float64 {
	if prev == nil || prevEnd != h-3 {
		return cumulative
	}
	segment := make([]float64, len(cumulative))
	for i := range cumulative {
		segment[i] = cumulative[i] - prev[i]
	}
	return segment
}

// probabilityFromCounts converts per-cell exceedance counts into a
// percentage of the member pool, clamped to [0, 100].
func probabilityFromCounts(counts []int, members int) []float64 {
	probability := make([]float64, len(counts))
	for i, k := range counts {
		probability[i] = math.Min(100, 100*float64(k)/float64(members))
	}
	return probability
}
