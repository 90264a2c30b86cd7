package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-ingest/internal/domain"
	"github.com/couchcryptid/forecast-ingest/internal/observability"
	"github.com/couchcryptid/forecast-ingest/internal/omstore"
)

func testRun(t *testing.T) domain.Run {
	t.Helper()
	r, err := domain.ParseRun("2024010100", domain.GFS025, time.Now())
	require.NoError(t, err)
	return r
}

func newTestScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	codec, err := omstore.NewCodec()
	require.NoError(t, err)
	return New(opts, nil, codec, clockwork.NewRealClock(), slog.Default(), observability.NewMetricsForTesting())
}

func TestSubTimesteps(t *testing.T) {
	t.Run("hourly products carry one step per hour", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.GFS025})
		assert.Equal(t, []int{6 * 3600}, s.subTimesteps(6))
	})

	t.Run("15-minute product packs four sub-steps", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.HRRRConus15Min})
		assert.Equal(t, []int{0}, s.subTimesteps(0))
		// Hour 3 covers minutes 135, 150, 165, 180.
		assert.Equal(t, []int{135 * 60, 150 * 60, 165 * 60, 180 * 60}, s.subTimesteps(3))
	})
}

func TestSpaceFilePath(t *testing.T) {
	t.Run("deterministic naming", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.GFS025, DataDir: "/data"})
		path := s.spaceFilePath(domain.Surface{Kind: domain.Temperature2m}, 0, 6*3600)
		assert.Equal(t, "/data/gfs025/temperature_2m_6.fpg", path)
	})

	t.Run("ensemble members carry a suffix", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.GFS05Ensemble, DataDir: "/data"})
		path := s.spaceFilePath(domain.Surface{Kind: domain.Precipitation}, 17, 6*3600)
		assert.Equal(t, "/data/gfs05_ensemble/precipitation_6_17.fpg", path)
	})

	t.Run("15-minute keys are quarter-hour indices", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.HRRRConus15Min, DataDir: "/data"})
		// Minute 135 is quarter-hour 9 (scenario: hour 3 yields keys 9-12).
		path := s.spaceFilePath(domain.Surface{Kind: domain.DiffuseRadiation}, 0, 135*60)
		assert.Equal(t, "/data/hrrr_conus_15min/diffuse_radiation_9.fpg", path)
	})
}

func TestSelectVariables(t *testing.T) {
	t.Run("defaults to the full catalogue order", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.GFS025})
		vars := s.selectVariables()
		assert.Equal(t, len(domain.GFS025.Variables(false, false)), len(vars))
	})

	t.Run("only-variables filters by name, keeping order", func(t *testing.T) {
		s := newTestScheduler(t, Options{
			Domain:        domain.GFS025,
			OnlyVariables: []string{"relative_humidity_2m", "temperature_2m"},
		})
		vars := s.selectVariables()
		require.Len(t, vars, 2)
		assert.Equal(t, "temperature_2m", vars[0].OmFileName())
		assert.Equal(t, "relative_humidity_2m", vars[1].OmFileName())
	})

	t.Run("level flags restrict the surface", func(t *testing.T) {
		s := newTestScheduler(t, Options{Domain: domain.GFS025, UpperLevel: true})
		for _, v := range s.selectVariables() {
			_, ok := v.(domain.Pressure)
			assert.True(t, ok)
		}
	})
}

func TestRunSkipExistingReusesStagedFiles(t *testing.T) {
	dataDir := t.TempDir()
	run := testRun(t)

	opts := Options{
		Domain:          domain.GFS025,
		Run:             run,
		OnlyVariables:   []string{"temperature_2m"},
		MaxForecastHour: 2,
		SkipExisting:    true,
		DataDir:         dataDir,
	}
	s := newTestScheduler(t, opts)

	// Stage hours 0..2 up front; with every file present the scheduler must
	// finish without touching the network (the client is nil).
	dir := domain.GFS025.DownloadDirectory(dataDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for h := 0; h <= 2; h++ {
		path := filepath.Join(dir, fmt.Sprintf("temperature_2m_%d.fpg", h))
		_, err := omstore.WriteSpaceFrame(s.codec, path, []float64{1, 2, 3, 4}, 20, 4)
		require.NoError(t, err)
	}

	handles, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, handles["temperature_2m"], 3)

	seconds := map[int]bool{}
	for _, h := range handles["temperature_2m"] {
		seconds[h.ForecastSeconds] = true
	}
	assert.True(t, seconds[0] && seconds[3600] && seconds[7200])
}
