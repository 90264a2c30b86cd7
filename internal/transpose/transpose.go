// Package transpose folds a run's per-hour space files into the
// time-oriented column store: one variable at a time, streaming over
// location blocks, filling time gaps by the variable's interpolation kind.
package transpose

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/observability"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
	"github.com/couchcryptid/forecast-ingest/internal/scheduler"
)

// Transposer drives the space-to-time transposition with a bounded worker
// pool. Variables are whole units of work: a worker owns every chunk of its
// variable, so chunk-level writes never interleave across workers.
type Transposer struct {
	store       *omstore.ColumnStore
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Transposer writing into the given store.
func New(store *omstore.ColumnStore, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Transposer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Transposer{store: store, concurrency: concurrency, logger: logger, metrics: metrics}
}

// Run transposes every staged variable of one run.
func (t *Transposer) Run(ctx context.Context, d domain.Domain, run domain.Run, handles map[string][]scheduler.SpaceHandle) error {
	names := make([]string, 0, len(handles))
	for name := range handles {
		names = append(names, name)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			err := t.transposeVariable(d, run, handles[name])
			t.metrics.VariableTransposeDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				return err
			}
			t.logger.Info("variable transposed", "variable", name, "frames", len(handles[name]))
			return nil
		})
	}
	return g.Wait()
}

// transposeVariable reads one variable's space files, interpolates the time
// axis per location, and splices the result into the column store.
func (t *Transposer) transposeVariable(d domain.Domain, run domain.Run, hs []scheduler.SpaceHandle) error {
	v := hs[0].Variable
	members := d.EnsembleMembers()
	dt := int64(d.DtSeconds())
	cells := d.Grid().Count()

	// One reader per (time, member).
	readers := map[int64]map[int]*blockReader{}
	var maxSeconds int
	for _, h := range hs {
		key := int64(h.ForecastSeconds)
		if readers[key] == nil {
			readers[key] = map[int]*blockReader{}
		}
		readers[key][h.Member] = newBlockReader(h.File)
		if h.ForecastSeconds > maxSeconds {
			maxSeconds = h.ForecastSeconds
		}
	}

	i0 := int(run.Time.Unix() / dt)
	i1 := int((run.Time.Unix()+int64(maxSeconds))/dt) + 1
	nTimes := i1 - i0

	skipFirst := 0
	if v.SkipHour0(d) {
		skipFirst = 1
	}

	interpolation := v.Interpolation()
	proj := d.Grid().Projection

	producer := func(locStart, nLoc int) ([]float64, error) {
		cube := make([]float64, nLoc*nTimes)
		for i := range cube {
			cube[i] = math.NaN()
		}

		cellStart := locStart / members
		for seconds, byMember := range readers {
			tIdx := int((run.Time.Unix()+seconds)/dt) - i0
			if tIdx < 0 || tIdx >= nTimes {
				continue
			}
			for member, reader := range byMember {
				nCells := nLoc / members
				if members == 1 {
					nCells = nLoc
				}
				vals, err := reader.ReadCells(cellStart, nCells)
				if err != nil {
					return nil, err
				}
				for c, val := range vals {
					loc := c*members + member
					cube[loc*nTimes+tIdx] = val
				}
			}
		}

		for loc := 0; loc < nLoc; loc++ {
			series := cube[loc*nTimes : (loc+1)*nTimes]
			if interpolation == domain.InterpolationSolarBackward {
				cell := (locStart + loc) / members
				lat, lon := proj.Coord(cell)
				FillGapsSolarBackward(series, lat, lon, run.Time, time.Duration(dt)*time.Second)
			} else {
				FillGaps(interpolation, series)
			}
		}
		return cube, nil
	}

	return t.store.UpdateFromTimeOrientedStreaming(
		v.OmFileName(), v.Scalefactor(), cells*members, i0, i1, skipFirst, producer)
}

// blockReader wraps a space file with a one-block cache, so sequential
// location walks decompress each block once.
type blockReader struct {
	file   *omstore.SpaceFile
	block  int
	values []float64
}

func newBlockReader(file *omstore.SpaceFile) *blockReader {
	return &blockReader{file: file, block: -1}
}

// ReadCells returns cells [start, start+n), crossing block boundaries as
// needed.
func (r *blockReader) ReadCells(start, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := 0; i < n; {
		cell := start + i
		b := cell / r.file.BlockSize
		if b != r.block {
			vals, err := r.file.ReadBlock(b)
			if err != nil {
				return nil, err
			}
			r.block, r.values = b, vals
		}
		within := cell % r.file.BlockSize
		copied := copy(out[i:], r.values[within:])
		i += copied
	}
	return out, nil
}
