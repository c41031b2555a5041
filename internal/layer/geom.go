package layer

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// SRID is the spatial reference assigned to every geometry read from disk.
const SRID = 4326

// EncodeEWKB converts a geometry to little-endian EWKB. Returns nil, nil for a
// nil geometry.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "layer: encode EWKB")
	}
	return data, nil
}

// shapeToGeom converts a go-shp shape to a go-geom geometry. Polygon parts
// are grouped by ring orientation: clockwise parts are shells and
// counter-clockwise parts are holes of the shell containing them. One shell
// gives a Polygon, several a MultiPolygon. Unsupported shapes return nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(SRID)
	case *shp.Polygon:
		return polygonToGeom(s)
	default:
		return nil
	}
}

// polygonRings splits the parts of p into closed flat rings, dropping parts
// too short to form one.
func polygonRings(p *shp.Polygon) [][]float64 {
	rings := make([][]float64, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start, end := p.Parts[i], int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("layer: skipping short polygon ring", zap.Int32("part", i), zap.Int32("points", end-start))
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		rings = append(rings, flat)
	}
	return rings
}

func polygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells, holes [][]float64
	for _, r := range polygonRings(p) {
		if xy.IsRingCounterClockwise(geom.XY, r) {
			holes = append(holes, r)
		} else {
			shells = append(shells, r)
		}
	}
	if len(shells) == 0 {
		// Writers that ignore orientation: every ring is a shell.
		shells, holes = holes, nil
	}

	// polys[i][0] is the shell, the rest its holes.
	polys := make([][][]float64, len(shells))
	for i, sh := range shells {
		polys[i] = [][]float64{sh}
	}
	for _, h := range holes {
		owner := -1
		for i, sh := range shells {
			if xy.IsPointInRing(geom.XY, geom.Coord(h[:2]), sh) {
				owner = i
				break
			}
		}
		if owner < 0 {
			polys = append(polys, [][]float64{h})
			continue
		}
		polys[owner] = append(polys[owner], h)
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for i, rings := range polys {
		poly := geom.NewPolygon(geom.XY).SetSRID(SRID)
		for _, r := range rings {
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, r)); err != nil {
				zap.L().Debug("layer: skipping malformed polygon ring", zap.Int("polygon", i), zap.Error(err))
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("layer: skipping malformed polygon", zap.Int("polygon", i), zap.Error(err))
		}
	}

	switch mp.NumPolygons() {
	case 0:
		return nil
	case 1:
		return mp.Polygon(0).SetSRID(SRID)
	default:
		return mp
	}
}

// normalizeKey makes cell identifiers from different sources comparable:
// "12", "12.0" and 12 all become "12".
func normalizeKey(s string) string {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// keyFromAny normalises a decoded JSON identifier.
func keyFromAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeKey(t)
	case float64:
		return normalizeKey(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
