package transpose

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-ingest/internal/omstore"
)

func writeTestSpaceFile(t *testing.T, values []float64, blockSize int) *omstore.SpaceFile {
	t.Helper()
	codec, err := omstore.NewCodec()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "frame.fpg")
	file, err := omstore.WriteSpaceFrame(codec, path, values, 100, blockSize)
	require.NoError(t, err)
	return file
}
