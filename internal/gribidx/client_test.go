package gribidx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gribServer serves a synthetic two-message GRIB file with its index and
// honours Range requests the way NOMADS does.
func gribServer(t *testing.T, messages map[string][]byte, order []string) *httptest.Server {
	t.Helper()

	var blob []byte
	var lines []string
	for i, name := range order {
		parts := strings.SplitN(name, "|", 2)
		lines = append(lines, fmt.Sprintf("%d:%d:d=2024010100:%s:", i+1, len(blob), parts[1]))
		blob = append(blob, messages[name]...)
	}
	index := strings.Join(lines, "\n") + "\n"

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".idx") {
			fmt.Fprint(w, index)
			return
		}
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Write(blob)
			return
		}
		var start, end int
		spec := strings.TrimPrefix(rangeHeader, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		start, _ = strconv.Atoi(parts[0])
		if parts[1] == "" {
			end = len(blob) - 1
		} else {
			end, _ = strconv.Atoi(parts[1])
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(blob[start : end+1])
	}))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(SimplePackingDecoder{}, 5*time.Second, clockwork.NewRealClock(), slog.Default())
}

func TestDownloadIndexed(t *testing.T) {
	temperature := encodeGrib(t, []float64{273.5, 274.0, 275.0, 276.0}, nil)
	pressure := encodeGrib(t, []float64{1013.0, 1012.5, 1011.0, 1015.5}, nil)

	srv := gribServer(t, map[string][]byte{
		"tmp|TMP:2 m above ground:6 hour fcst":   temperature,
		"prmsl|PRMSL:mean sea level:6 hour fcst": pressure,
	}, []string{"tmp|TMP:2 m above ground:6 hour fcst", "prmsl|PRMSL:mean sea level:6 hour fcst"})
	defer srv.Close()

	c := newTestClient(t)

	t.Run("messages arrive in selector order with attributes", func(t *testing.T) {
		selectors := []string{":PRMSL:mean sea level:", ":TMP:2 m above ground:"}
		messages, err := c.DownloadIndexed(context.Background(), srv.URL+"/file", selectors, 2, 2, time.Minute)
		require.NoError(t, err)
		require.Len(t, messages, 2)

		assert.Equal(t, ":PRMSL:mean sea level:", messages[0].Selector)
		assert.Equal(t, "prmsl", messages[0].Attributes.ShortName)
		assert.InDelta(t, 1013.0, messages[0].Frame.Elements[0], 0.05)

		assert.Equal(t, ":TMP:2 m above ground:", messages[1].Selector)
		assert.Equal(t, "instant", messages[1].Attributes.StepType)
		assert.Equal(t, "6", messages[1].Attributes.StepRange)
		assert.InDelta(t, 273.5, messages[1].Frame.Elements[0], 0.05)
	})

	t.Run("missing selector fails after the index stalls", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := c.DownloadIndexed(ctx, srv.URL+"/file", []string{":UGRD:10 m above ground:"}, 2, 2, time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIndexStalled)
	})
}

func TestDownloadIndexedDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := c.DownloadIndexed(ctx, srv.URL+"/missing", []string{":TMP:2 m above ground:"}, 2, 2, time.Minute)
	require.Error(t, err)
	assert.Error(t, ctx.Err())
}
