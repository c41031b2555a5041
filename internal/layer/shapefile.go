package layer

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

type shpField struct {
	idx     int
	name    string
	numeric bool
}

func shpFields(reader *shp.Reader) []shpField {
	fields := reader.Fields()
	out := make([]shpField, len(fields))
	for i, f := range fields {
		out[i] = shpField{
			idx:     i,
			name:    strings.TrimRight(f.String(), "\x00"),
			numeric: f.Fieldtype == 'N' || f.Fieldtype == 'F',
		}
	}
	return out
}

func findField(fields []shpField, name string) (shpField, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return shpField{}, false
}

func shpMeasure(raw string) hexagg.Measure {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if raw == "" {
		return hexagg.Null
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return hexagg.Null
	}
	return hexagg.Some(v)
}

// ReadHexShapefile reads a polygon shapefile into a hex layer. indexField
// names the attribute holding the cell id; a study_region text attribute is
// picked up when present and every other numeric attribute becomes a measure.
func ReadHexShapefile(path, indexField string) (hexagg.HexLayer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return hexagg.HexLayer{}, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := shpFields(reader)
	idxField, ok := findField(fields, indexField)
	if !ok {
		return hexagg.HexLayer{}, &hexagg.InputSchemaError{Operation: "read hexes", Field: indexField}
	}
	regionField, hasRegion := findField(fields, hexagg.ColumnStudyRegion)

	out := hexagg.HexLayer{Columns: []string{hexagg.ColumnIndex}}
	if hasRegion {
		out.Columns = append(out.Columns, hexagg.ColumnStudyRegion)
	}
	var measures []shpField
	for _, f := range fields {
		if f.idx == idxField.idx || (hasRegion && f.idx == regionField.idx) || !f.numeric {
			continue
		}
		measures = append(measures, f)
		out.Columns = append(out.Columns, f.name)
	}
	out.Columns = append(out.Columns, hexagg.ColumnGeometry)

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		cell := hexagg.HexCell{
			Index:    normalizeKey(reader.Attribute(idxField.idx)),
			Geometry: g,
			Measures: make(map[string]hexagg.Measure, len(measures)),
		}
		if hasRegion {
			cell.StudyRegion = strings.TrimSpace(strings.TrimRight(reader.Attribute(regionField.idx), "\x00"))
		}
		for _, f := range measures {
			cell.Measures[f.name] = shpMeasure(reader.Attribute(f.idx))
		}
		out.Cells = append(out.Cells, cell)
	}
	if err := reader.Err(); err != nil {
		return hexagg.HexLayer{}, eris.Wrapf(err, "layer: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("layer: skipped hex records without polygon geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// ReadPointShapefile reads a point shapefile into a sample set. The
// hexIDField attribute, when present, is exposed as hex_id.
func ReadPointShapefile(path, hexIDField string) (hexagg.SampleSet, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return hexagg.SampleSet{}, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := shpFields(reader)
	idField, hasID := findField(fields, hexIDField)

	var out hexagg.SampleSet
	if hasID {
		out.Fields = append(out.Fields, hexagg.FieldHexID)
	}
	var measures []shpField
	for _, f := range fields {
		if (hasID && f.idx == idField.idx) || !f.numeric {
			continue
		}
		measures = append(measures, f)
		out.Fields = append(out.Fields, f.name)
	}

	for reader.Next() {
		_, shape := reader.Shape()
		p := hexagg.SamplePoint{Measures: make(map[string]hexagg.Measure, len(measures))}
		if pt, ok := shapeToGeom(shape).(*geom.Point); ok {
			p.Geometry = pt
		}
		if hasID {
			p.HexID = normalizeKey(reader.Attribute(idField.idx))
		}
		for _, f := range measures {
			p.Measures[f.name] = shpMeasure(reader.Attribute(f.idx))
		}
		out.Points = append(out.Points, p)
	}
	if err := reader.Err(); err != nil {
		return hexagg.SampleSet{}, eris.Wrapf(err, "layer: read shapefile %s", path)
	}
	return out, nil
}
