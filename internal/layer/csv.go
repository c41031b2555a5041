package layer

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/indicators-cli/internal/fetcher"
	"github.com/sells-group/indicators-cli/internal/hexagg"
)

var (
	lonColumns = []string{"lon", "lng", "longitude", "x"}
	latColumns = []string{"lat", "latitude", "y"}
)

func columnIndex(header []string, names ...string) int {
	for i, h := range header {
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(h), n) {
				return i
			}
		}
	}
	return -1
}

// ReadPointCSV reads sample points from a CSV with a header row. Columns named
// lon/lat (or x/y) become point geometry; hexIDField becomes hex_id; every
// other column that holds at least one number becomes a measure.
func ReadPointCSV(ctx context.Context, r io.Reader, hexIDField string) (hexagg.SampleSet, error) {
	stream, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{})
	if errors.Is(err, fetcher.ErrNoHeader) {
		return hexagg.SampleSet{}, eris.New("layer: point csv has no header row")
	}
	if err != nil {
		return hexagg.SampleSet{}, eris.Wrap(err, "layer: read point csv")
	}

	var rows [][]string
	for row := range stream.Rows {
		rows = append(rows, row.Fields)
	}
	if err := stream.Err(); err != nil {
		return hexagg.SampleSet{}, eris.Wrap(err, "layer: read point csv")
	}
	header := stream.Header

	idCol := columnIndex(header, hexIDField)
	lonCol := columnIndex(header, lonColumns...)
	latCol := columnIndex(header, latColumns...)

	numeric := make([]bool, len(header))
	for _, row := range rows {
		for i, v := range row {
			if i >= len(header) || i == idCol || i == lonCol || i == latCol {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				numeric[i] = true
			}
		}
	}

	var out hexagg.SampleSet
	if idCol >= 0 {
		out.Fields = append(out.Fields, hexagg.FieldHexID)
	}
	for i, h := range header {
		if numeric[i] {
			out.Fields = append(out.Fields, h)
		}
	}

	for _, row := range rows {
		p := hexagg.SamplePoint{Measures: map[string]hexagg.Measure{}}
		if idCol >= 0 && idCol < len(row) {
			p.HexID = normalizeKey(row[idCol])
		}
		if lonCol >= 0 && latCol >= 0 && lonCol < len(row) && latCol < len(row) {
			lon, errLon := strconv.ParseFloat(row[lonCol], 64)
			lat, errLat := strconv.ParseFloat(row[latCol], 64)
			if errLon == nil && errLat == nil {
				p.Geometry = geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
			}
		}
		for i, h := range header {
			if !numeric[i] {
				continue
			}
			m := hexagg.Null
			if i < len(row) {
				if v, err := strconv.ParseFloat(row[i], 64); err == nil {
					m = hexagg.Some(v)
				}
			}
			p.Measures[h] = m
		}
		out.Points = append(out.Points, p)
	}
	return out, nil
}
