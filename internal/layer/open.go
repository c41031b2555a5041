// Package layer reads hex grids and sample points from shapefiles, GeoJSON
// and CSV, and writes aggregated layers as GeoJSON, XLSX or EWKB rows.
package layer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

// ReadHexes reads a hex layer, choosing the decoder by file extension.
func ReadHexes(path, indexField string) (hexagg.HexLayer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadHexShapefile(path, indexField)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return hexagg.HexLayer{}, eris.Wrapf(err, "layer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadHexGeoJSON(f, indexField)
	default:
		return hexagg.HexLayer{}, eris.Errorf("layer: unsupported hex format %q", filepath.Ext(path))
	}
}

// ReadPoints reads a sample point set, choosing the decoder by file extension.
func ReadPoints(ctx context.Context, path, hexIDField string) (hexagg.SampleSet, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".shp" {
		return ReadPointShapefile(path, hexIDField)
	}

	f, err := os.Open(path)
	if err != nil {
		return hexagg.SampleSet{}, eris.Wrapf(err, "layer: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".geojson", ".json":
		return ReadPointGeoJSON(f, hexIDField)
	case ".csv":
		return ReadPointCSV(ctx, f, hexIDField)
	default:
		return hexagg.SampleSet{}, eris.Errorf("layer: unsupported point format %q", ext)
	}
}
