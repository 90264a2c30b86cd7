// Package scheduler drives one forecast run's ingestion: it walks the
// forecast-hour schedule, fans out over ensemble members and variables,
// feeds decoded GRIB messages through the semantic conversion chain, and
// stages the results as per-hour space files for the transposer.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/gribidx"
	"github.com/couchcryptid/forecast-ingest/internal/observability"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
)

// spaceFileBlockCells is the spatial block width of staged frames. The
// transposer reads one block at a time while walking locations in order.
const spaceFileBlockCells = 1024

// Options select what one invocation downloads.
type Options struct {
	Domain          domain.Domain
	Run             domain.Run
	OnlyVariables   []string
	MaxForecastHour int
	SkipExisting    bool
	SecondFlush     bool
	SurfaceLevel    bool
	UpperLevel      bool
	DataDir         string
	// BaseURL replaces the NOMADS root, for tests.
	BaseURL string
}

// SpaceHandle ties a staged space file to its position on the time and
// member axes.
type SpaceHandle struct {
	Variable        domain.Variable
	Member          int
	ForecastSeconds int
	File            *omstore.SpaceFile
}

// Scheduler downloads and stages one run.
type Scheduler struct {
	opts    Options
	client  *gribidx.Client
	codec   *omstore.Codec
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	ready   atomic.Bool
	handles map[string][]SpaceHandle
}

// New creates a Scheduler.
func New(opts Options, client *gribidx.Client, codec *omstore.Codec, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		opts:    opts,
		client:  client,
		codec:   codec,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		handles: map[string][]SpaceHandle{},
	}
}

// Ready reports whether at least one frame has been staged, for the
// readiness endpoint.
func (s *Scheduler) Ready() bool { return s.ready.Load() }

// Run executes the download loop and returns the staged space-file handles
// grouped by variable file name.
func (s *Scheduler) Run(ctx context.Context) (map[string][]SpaceHandle, error) {
	d := s.opts.Domain
	vars := s.selectVariables()
	if len(vars) == 0 {
		return nil, fmt.Errorf("scheduler: no variables selected for %s", d)
	}

	hours := d.ForecastHours(s.opts.Run.Hour(), s.opts.SecondFlush)
	if s.opts.MaxForecastHour > 0 {
		hours = slices.DeleteFunc(slices.Clone(hours), func(h int) bool { return h > s.opts.MaxForecastHour })
	}

	dir := d.DownloadDirectory(s.opts.DataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scheduler: create download directory: %w", err)
	}

	s.metrics.RunInProgress.Set(1)
	defer s.metrics.RunInProgress.Set(0)

	s.logger.Info("run started",
		"domain", d.String(), "run", s.opts.Run.Timestamp(),
		"hours", len(hours), "members", d.EnsembleMembers(), "variables", len(vars))

	conv := newConverter(d)
	for _, h := range hours {
		hourStart := s.clock.Now()
		for member := 0; member < d.EnsembleMembers(); member++ {
			for _, step := range s.subTimesteps(h) {
				if err := s.downloadStep(ctx, conv, vars, h, member, step); err != nil {
					return nil, err
				}
			}
		}
		s.metrics.HourDownloadDuration.Observe(s.clock.Since(hourStart).Seconds())
	}

	return s.handles, nil
}

// subTimesteps returns the offsets [s] covered by one forecast-hour file.
// The 15-minute product packs four sub-steps per hour; hour 0 is a single
// instantaneous step.
func (s *Scheduler) subTimesteps(h int) []int {
	if s.opts.Domain != domain.HRRRConus15Min {
		return []int{h * 3600}
	}
	if h == 0 {
		return []int{0}
	}
	steps := make([]int, 0, 4)
	for k := 1; k <= 4; k++ {
		steps = append(steps, ((h-1)*60+k*15)*60)
	}
	return steps
}

// downloadStep fetches one (hour, member, sub-timestep) and routes each
// message through the conversion chain in catalogue order.
func (s *Scheduler) downloadStep(ctx context.Context, conv *converter, vars []domain.Variable, h, member, stepSeconds int) error {
	d := s.opts.Domain
	conv.beginPass()

	timestepMinutes := 0
	if d == domain.HRRRConus15Min {
		timestepMinutes = stepSeconds / 60
	}

	var (
		bySelector = map[string]domain.Variable{}
		selectors  []string
	)
	for _, v := range vars {
		sel, ok := v.GribIndexName(d, timestepMinutes)
		if !ok {
			continue
		}
		if h == 0 && v.SkipHour0(d) {
			continue
		}
		path := s.spaceFilePath(v, member, stepSeconds)
		if s.opts.SkipExisting {
			if handle, err := omstore.OpenSpaceFile(s.codec, path); err == nil {
				s.register(v, member, stepSeconds, handle)
				s.metrics.SpaceFilesReused.Inc()
				continue
			}
		}
		bySelector[sel] = v
		selectors = append(selectors, sel)
	}
	if len(selectors) == 0 {
		return nil
	}

	g := d.Grid()
	url := s.gribURL(h, member)
	messages, err := s.client.DownloadIndexed(ctx, url, selectors, g.Ny, g.Nx, d.WaitAfterLastModified())
	if err != nil {
		s.metrics.DownloadErrors.Inc()
		return fmt.Errorf("scheduler: hour %d member %d: %w", h, member, err)
	}
	s.metrics.MessagesDownloaded.Add(float64(len(messages)))

	validTime := s.opts.Run.ValidTime(stepSeconds)
	stepDuration := time.Duration(d.DtSeconds()) * time.Second

	for _, msg := range messages {
		v := bySelector[msg.Selector]
		values, persist, err := conv.process(v, member, validTime, stepDuration, msg)
		if err != nil {
			return fmt.Errorf("scheduler: convert %s hour %d member %d: %w", v.OmFileName(), h, member, err)
		}
		s.metrics.FramesConverted.Inc()
		if !persist {
			continue
		}
		handle, err := omstore.WriteSpaceFrame(s.codec, s.spaceFilePath(v, member, stepSeconds), values, v.Scalefactor(), spaceFileBlockCells)
		if err != nil {
			return fmt.Errorf("scheduler: stage %s hour %d member %d: %w", v.OmFileName(), h, member, err)
		}
		s.metrics.SpaceFilesWritten.Inc()
		s.ready.Store(true)
		s.register(v, member, stepSeconds, handle)
	}
	return nil
}

// gribURL builds the hour's file URL, honouring the test override.
func (s *Scheduler) gribURL(h, member int) string {
	url := s.opts.Domain.GribURL(s.opts.Run, h, member)
	if s.opts.BaseURL != "" {
		url = s.opts.BaseURL + strings.TrimPrefix(url, domain.NomadsBase)
	}
	return url
}

func (s *Scheduler) register(v domain.Variable, member, stepSeconds int, file *omstore.SpaceFile) {
	name := v.OmFileName()
	s.handles[name] = append(s.handles[name], SpaceHandle{
		Variable:        v,
		Member:          member,
		ForecastSeconds: stepSeconds,
		File:            file,
	})
}

// spaceFilePath names staged frames `<omFileName>_<key>[_member].fpg`, where
// key is the forecast hour, or the quarter-hour index for the 15-minute
// product.
func (s *Scheduler) spaceFilePath(v domain.Variable, member, stepSeconds int) string {
	d := s.opts.Domain
	key := stepSeconds / 3600
	if d == domain.HRRRConus15Min {
		key = stepSeconds / 60 / 15
	}
	name := fmt.Sprintf("%s_%d.fpg", v.OmFileName(), key)
	if d.EnsembleMembers() > 1 {
		name = fmt.Sprintf("%s_%d_%d.fpg", v.OmFileName(), key, member)
	}
	return filepath.Join(d.DownloadDirectory(s.opts.DataDir), name)
}

// selectVariables applies the CLI's level and name filters to the catalogue
// order.
func (s *Scheduler) selectVariables() []domain.Variable {
	vars := s.opts.Domain.Variables(s.opts.SurfaceLevel, s.opts.UpperLevel)
	if len(s.opts.OnlyVariables) == 0 {
		return vars
	}
	keep := map[string]bool{}
	for _, name := range s.opts.OnlyVariables {
		keep[name] = true
	}
	var out []domain.Variable
	for _, v := range vars {
		if keep[v.OmFileName()] {
			out = append(out, v)
		}
	}
	return out
}
