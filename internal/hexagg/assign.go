package hexagg

import (
	"slices"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// AssignHexIDs links points without a hex_id to the cell polygon that
// contains them. Points that already carry an id, have no geometry, or fall
// outside every cell are left as they are. The returned set always lists
// hex_id among its fields.
func AssignHexIDs(points SampleSet, cells HexLayer) SampleSet {
	out := SampleSet{
		Fields: slices.Clone(points.Fields),
		Points: make([]SamplePoint, len(points.Points)),
	}
	copy(out.Points, points.Points)
	if !out.HasField(FieldHexID) {
		out.Fields = append(out.Fields, FieldHexID)
	}

	var assigned, unmatched int
	for i := range out.Points {
		p := &out.Points[i]
		if p.HexID != "" || p.Geometry == nil {
			continue
		}
		coord := p.Geometry.Coords()
		for _, c := range cells.Cells {
			if containsPoint(c.Geometry, coord) {
				p.HexID = c.Index
				assigned++
				break
			}
		}
		if p.HexID == "" {
			unmatched++
		}
	}

	if assigned > 0 || unmatched > 0 {
		zap.L().Info("hexagg: assigned hex ids",
			zap.Int("assigned", assigned),
			zap.Int("unmatched", unmatched),
		)
	}
	return out
}

func containsPoint(g geom.T, c geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, c)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), c) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	if !p.Bounds().OverlapsPoint(p.Layout(), c) {
		return false
	}
	if !xy.IsPointInRing(p.Layout(), c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
