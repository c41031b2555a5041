package layer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHexes_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hex.geojson")
	require.NoError(t, os.WriteFile(path, []byte(hexCollection), 0o644))

	l, err := ReadHexes(path, "index")
	require.NoError(t, err)
	assert.Len(t, l.Cells, 2)

	l, err = ReadHexes(writeHexShapefile(t), "index")
	require.NoError(t, err)
	assert.Len(t, l.Cells, 2)

	_, err = ReadHexes(filepath.Join(dir, "hex.gpkg"), "index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported hex format")
}

func TestReadPoints_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("hex_id,score\n1,2\n"), 0o644))

	set, err := ReadPoints(context.Background(), path, "hex_id")
	require.NoError(t, err)
	assert.Len(t, set.Points, 1)

	txt := filepath.Join(dir, "points.txt")
	require.NoError(t, os.WriteFile(txt, nil, 0o644))
	_, err = ReadPoints(context.Background(), txt, "hex_id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported point format")

	_, err = ReadPoints(context.Background(), filepath.Join(dir, "missing.csv"), "hex_id")
	require.Error(t, err)
}
