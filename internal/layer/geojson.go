package layer

import (
	"encoding/json"
	"io"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
)

func decodeCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "layer: decode geojson")
	}
	return &fc, nil
}

// numericProps returns the property names that hold a number in at least one
// feature, sorted, excluding skip.
func numericProps(fc *geojson.FeatureCollection, skip ...string) []string {
	seen := map[string]bool{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if _, ok := v.(float64); ok && !slices.Contains(skip, k) {
				seen[k] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func propMeasure(props map[string]any, name string) hexagg.Measure {
	if v, ok := props[name].(float64); ok {
		return hexagg.Some(v)
	}
	return hexagg.Null
}

// ReadHexGeoJSON reads a FeatureCollection of hex polygons. The cell id comes
// from the indexField property, falling back to the feature id.
func ReadHexGeoJSON(r io.Reader, indexField string) (hexagg.HexLayer, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return hexagg.HexLayer{}, err
	}

	hasRegion := false
	for _, f := range fc.Features {
		if _, ok := f.Properties[hexagg.ColumnStudyRegion].(string); ok {
			hasRegion = true
			break
		}
	}

	out := hexagg.HexLayer{Columns: []string{hexagg.ColumnIndex}}
	if hasRegion {
		out.Columns = append(out.Columns, hexagg.ColumnStudyRegion)
	}
	measures := numericProps(fc, indexField, hexagg.ColumnIndex)
	out.Columns = append(out.Columns, measures...)
	out.Columns = append(out.Columns, hexagg.ColumnGeometry)

	for i, f := range fc.Features {
		id := keyFromAny(f.Properties[indexField])
		if id == "" {
			id = normalizeKey(f.ID)
		}
		if id == "" {
			return hexagg.HexLayer{}, eris.Wrapf(&hexagg.InputSchemaError{Operation: "read hexes", Field: indexField}, "layer: feature %d", i)
		}

		cell := hexagg.HexCell{
			Index:    id,
			Geometry: f.Geometry,
			Measures: make(map[string]hexagg.Measure, len(measures)),
		}
		if hasRegion {
			cell.StudyRegion, _ = f.Properties[hexagg.ColumnStudyRegion].(string)
		}
		for _, m := range measures {
			cell.Measures[m] = propMeasure(f.Properties, m)
		}
		out.Cells = append(out.Cells, cell)
	}
	return out, nil
}

// ReadPointGeoJSON reads a FeatureCollection of sample points. hexIDField is
// exposed as hex_id when any feature carries it.
func ReadPointGeoJSON(r io.Reader, hexIDField string) (hexagg.SampleSet, error) {
	fc, err := decodeCollection(r)
	if err != nil {
		return hexagg.SampleSet{}, err
	}

	hasID := false
	for _, f := range fc.Features {
		if _, ok := f.Properties[hexIDField]; ok {
			hasID = true
			break
		}
	}

	var out hexagg.SampleSet
	if hasID {
		out.Fields = append(out.Fields, hexagg.FieldHexID)
	}
	measures := numericProps(fc, hexIDField)
	out.Fields = append(out.Fields, measures...)

	for _, f := range fc.Features {
		p := hexagg.SamplePoint{Measures: make(map[string]hexagg.Measure, len(measures))}
		if pt, ok := f.Geometry.(*geom.Point); ok {
			p.Geometry = pt
		}
		if hasID {
			p.HexID = keyFromAny(f.Properties[hexIDField])
		}
		for _, m := range measures {
			p.Measures[m] = propMeasure(f.Properties, m)
		}
		out.Points = append(out.Points, p)
	}
	return out, nil
}

func measureValue(m hexagg.Measure) any {
	if !m.Valid {
		return nil
	}
	return m.Value
}

// HexFeatures converts a layer to GeoJSON features. Only the layer's columns
// are emitted; null measures become JSON null.
func HexFeatures(l hexagg.HexLayer) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Cells))}
	for _, c := range l.Cells {
		f := &geojson.Feature{ID: c.Index, Properties: make(map[string]any, len(l.Columns))}
		for _, col := range l.Columns {
			switch col {
			case hexagg.ColumnIndex:
				f.Properties[col] = c.Index
			case hexagg.ColumnStudyRegion:
				f.Properties[col] = c.StudyRegion
			case hexagg.ColumnGeometry:
				f.Geometry = c.Geometry
			default:
				f.Properties[col] = measureValue(c.Measures[col])
			}
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}

// WriteHexGeoJSON writes a layer as a GeoJSON FeatureCollection.
func WriteHexGeoJSON(w io.Writer, l hexagg.HexLayer) error {
	if err := json.NewEncoder(w).Encode(HexFeatures(l)); err != nil {
		return eris.Wrap(err, "layer: encode hex geojson")
	}
	return nil
}

// WriteCityGeoJSON writes city summaries as features without geometry.
func WriteCityGeoJSON(w io.Writer, cities []indicators.CityIndicators) error {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(cities))}
	for _, c := range cities {
		f := &geojson.Feature{
			ID:         c.StudyRegion,
			Properties: map[string]any{hexagg.ColumnStudyRegion: c.StudyRegion},
		}
		for _, col := range c.Columns {
			f.Properties[col] = measureValue(c.Measures[col])
		}
		fc.Features = append(fc.Features, f)
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrap(err, "layer: encode city geojson")
	}
	return nil
}
