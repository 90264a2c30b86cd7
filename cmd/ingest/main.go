// Command ingest downloads one forecast run of a NOAA gridded product,
// normalises it, and folds it into the time-oriented column store.
//
// Usage:
//
//	ingest gfs025 --run 2024010100 --only-variables temperature_2m --max-forecast-hour 6
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/forecast-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/forecast-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/forecast-ingest/internal/cloud"
	"github.com/couchcryptid/forecast-ingest/internal/config"
	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/gribidx"
	"github.com/couchcryptid/forecast-ingest/internal/netcdf"
	"github.com/couchcryptid/forecast-ingest/internal/observability"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
	"github.com/couchcryptid/forecast-ingest/internal/scheduler"
	"github.com/couchcryptid/forecast-ingest/internal/transpose"
)

// Exit codes, stable for orchestration.
const (
	exitUsage        = 1
	exitDeadline     = 2
	exitMissingInput = 3
	exitUnsupported  = 4
	exitElevation    = 5
)

type flags struct {
	run             string
	onlyVariables   string
	timeInterval    string
	concurrent      int
	maxForecastHour int
	uploadS3Bucket  string
	skipExisting    bool
	createNetcdf    bool
	secondFlush     bool
	upperLevel      bool
	surfaceLevel    bool
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:   "ingest <domain>",
		Short: "Download and transpose one forecast run into the column store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.run, "run", "", "run as YYYYMMDDHH or a bare hour; latest complete run when empty")
	cmd.Flags().StringVar(&f.onlyVariables, "only-variables", "", "comma-separated variable names to ingest")
	cmd.Flags().StringVar(&f.timeInterval, "timeinterval", "", "YYYYMMDD-YYYYMMDD: rewrite stored chunks over this range instead of downloading")
	cmd.Flags().IntVar(&f.concurrent, "concurrent", 4, "transpose worker count")
	cmd.Flags().IntVar(&f.maxForecastHour, "max-forecast-hour", 0, "stop after this forecast hour")
	cmd.Flags().StringVar(&f.uploadS3Bucket, "upload-s3-bucket", "", "sync the column store to this bucket after the run")
	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", false, "reuse staged space files from a previous attempt")
	cmd.Flags().BoolVar(&f.createNetcdf, "create-netcdf", false, "dump staged frames as NetCDF for inspection")
	cmd.Flags().BoolVar(&f.secondFlush, "second-flush", false, "download the late second-wave forecast hours")
	cmd.Flags().BoolVar(&f.upperLevel, "upper-level", false, "ingest pressure-level variables only")
	cmd.Flags().BoolVar(&f.surfaceLevel, "surface-level", false, "ingest surface variables only")

	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds onto the CLI contract.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return exitDeadline
	case errors.Is(err, gribidx.ErrIndexStalled):
		return exitDeadline
	case errors.Is(err, gribidx.ErrMissingSelector),
		errors.Is(err, scheduler.ErrMissingPrerequisite):
		return exitMissingInput
	case errors.Is(err, scheduler.ErrUnsupportedStepType):
		return exitUnsupported
	case errors.Is(err, scheduler.ErrCorruptElevation):
		return exitElevation
	default:
		return exitUsage
	}
}

func run(domainName string, f flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	d, err := domain.ParseDomain(domainName)
	if err != nil {
		return err
	}
	fcRun, err := domain.ParseRun(f.run, d, clock.Now())
	if err != nil {
		return err
	}

	var onlyVariables []string
	if f.onlyVariables != "" {
		onlyVariables = strings.Split(f.onlyVariables, ",")
	}

	codec, err := omstore.NewCodec()
	if err != nil {
		return err
	}
	store := omstore.NewColumnStore(
		d.ColumnStoreRoot(cfg.DataDir), codec,
		omstore.LocationsPerChunkFor(d.EnsembleMembers()), timeChunkLen(d))

	if f.timeInterval != "" {
		return rewriteInterval(d, store, onlyVariables, f.timeInterval, logger)
	}

	// The run must finish inside the product deadline; a stuck process is
	// killed two hours after that so the next cron attempt can take over.
	deadline := time.Duration(d.DeadlineHours()) * time.Hour
	alarm := time.AfterFunc(deadline+2*time.Hour, func() {
		logger.Error("deadline alarm fired, aborting", "domain", d.String(), "run", fcRun.Timestamp())
		os.Exit(exitDeadline)
	})
	defer alarm.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	client := gribidx.NewClient(gribidx.SimplePackingDecoder{}, cfg.HTTPTimeout, clock, logger)
	sched := scheduler.New(scheduler.Options{
		Domain:          d,
		Run:             fcRun,
		OnlyVariables:   onlyVariables,
		MaxForecastHour: f.maxForecastHour,
		SkipExisting:    f.skipExisting,
		SecondFlush:     f.secondFlush,
		SurfaceLevel:    f.surfaceLevel,
		UpperLevel:      f.upperLevel,
		DataDir:         cfg.DataDir,
	}, client, codec, clock, logger, metrics)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, sched, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	notifier := kafkaadapter.NewNotifier(cfg, logger)
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}()

	started := clock.Now()

	if d.EnsembleMembers() == 1 {
		if err := sched.DownloadElevation(ctx); err != nil {
			return err
		}
	}

	handles, err := sched.Run(ctx)
	if err != nil {
		return err
	}
	if err := sched.RunPrecipitationProbability(ctx); err != nil {
		return err
	}

	if f.createNetcdf {
		if err := dumpNetcdf(d, handles, cfg.DataDir, logger); err != nil {
			return err
		}
	}

	transposer := transpose.New(store, f.concurrent, logger, metrics)
	if err := transposer.Run(ctx, d, fcRun, handles); err != nil {
		return err
	}

	if f.uploadS3Bucket != "" {
		bucket, err := cloud.OpenBucket(ctx, f.uploadS3Bucket)
		if err != nil {
			return err
		}
		defer bucket.Close()
		prefix := d.String() + "/store"
		if err := cloud.SyncDirectory(ctx, bucket, d.ColumnStoreRoot(cfg.DataDir), prefix, logger); err != nil {
			return err
		}
	}

	variables := make([]string, 0, len(handles))
	for name := range handles {
		variables = append(variables, name)
	}
	notifier.Publish(ctx, kafkaadapter.RunEvent{
		Domain:     d.String(),
		Run:        fcRun.Timestamp(),
		Variables:  variables,
		Duration:   clock.Since(started),
		FinishedAt: clock.Now(),
	})

	logger.Info("run complete",
		"domain", d.String(), "run", fcRun.Timestamp(),
		"variables", len(handles), "duration", clock.Since(started))
	return nil
}

// timeChunkLen sizes time chunks to one day of steps, which keeps a whole
// chunk file comfortably in memory during the splice.
func timeChunkLen(d domain.Domain) int {
	return 24 * 3600 / d.DtSeconds()
}

// dumpNetcdf writes each staged variable's member-0 frames for inspection.
func dumpNetcdf(d domain.Domain, handles map[string][]scheduler.SpaceHandle, dataDir string, logger *slog.Logger) error {
	g := d.Grid()
	for name, hs := range handles {
		var frames [][]float64
		for _, h := range hs {
			if h.Member != 0 {
				continue
			}
			values, err := h.File.ReadAll()
			if err != nil {
				return err
			}
			frames = append(frames, values)
		}
		path := fmt.Sprintf("%s/%s.nc", d.DownloadDirectory(dataDir), name)
		if err := netcdf.Dump(path, name, frames, g.Ny, g.Nx); err != nil {
			return err
		}
		logger.Info("netcdf dump written", "path", path, "frames", len(frames))
	}
	return nil
}

// rewriteInterval recompacts stored chunks over a date range by reading each
// variable back and splicing it through the streaming updater. Used for
// maintenance after layout or scalefactor changes.
func rewriteInterval(d domain.Domain, store *omstore.ColumnStore, variables []string, interval string, logger *slog.Logger) error {
	parts := strings.SplitN(interval, "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("timeinterval must be YYYYMMDD-YYYYMMDD, got %q", interval)
	}
	from, err := time.Parse("20060102", parts[0])
	if err != nil {
		return fmt.Errorf("parse timeinterval start: %w", err)
	}
	to, err := time.Parse("20060102", parts[1])
	if err != nil {
		return fmt.Errorf("parse timeinterval end: %w", err)
	}
	if len(variables) == 0 {
		return errors.New("--timeinterval requires --only-variables")
	}

	byName := map[string]domain.Variable{}
	for _, v := range d.Variables(false, false) {
		byName[v.OmFileName()] = v
	}

	dt := int64(d.DtSeconds())
	i0 := int(from.Unix() / dt)
	i1 := int(to.AddDate(0, 0, 1).Unix() / dt)
	totalLocations := d.Grid().Count() * d.EnsembleMembers()

	for _, name := range variables {
		v, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown variable %q for %s", name, d)
		}
		producer := func(locStart, nLoc int) ([]float64, error) {
			out := make([]float64, 0, nLoc*(i1-i0))
			for loc := locStart; loc < locStart+nLoc; loc++ {
				series, err := store.Read(name, v.Scalefactor(), totalLocations, loc, i0, i1)
				if err != nil {
					return nil, err
				}
				out = append(out, series...)
			}
			return out, nil
		}
		if err := store.UpdateFromTimeOrientedStreaming(name, v.Scalefactor(), totalLocations, i0, i1, 0, producer); err != nil {
			return err
		}
		logger.Info("interval rewritten", "variable", name, "from", parts[0], "to", parts[1])
	}
	return nil
}
