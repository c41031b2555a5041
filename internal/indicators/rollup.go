package indicators

import (
	"github.com/sells-group/indicators-cli/internal/hexagg"
)

// RollupCity summarises a hex layer for its study region. Each mapping pair
// becomes a population-weighted mean of Source; countField is summed across
// cells and kept under the same name.
func RollupCity(layer hexagg.HexLayer, name, popField, countField string, mapping []hexagg.FieldMapping) (CityIndicators, error) {
	required := []string{popField}
	if countField != "" {
		required = append(required, countField)
	}
	for _, m := range mapping {
		required = append(required, m.Source)
	}
	for _, f := range required {
		if !layer.HasColumn(f) {
			return CityIndicators{}, &hexagg.InputSchemaError{Operation: "city rollup", Field: f}
		}
	}

	city := CityIndicators{
		StudyRegion: name,
		Measures:    map[string]hexagg.Measure{},
	}

	if countField != "" {
		var n float64
		for _, c := range layer.Cells {
			if v := c.Measures[countField]; v.Valid {
				n += v.Value
			}
		}
		city.set(countField, hexagg.Some(n))
	}

	var popTotal float64
	for _, c := range layer.Cells {
		if p := c.Measures[popField]; p.Valid {
			popTotal += p.Value
		}
	}

	for _, m := range mapping {
		if popTotal == 0 {
			city.set(m.Destination, hexagg.Null)
			continue
		}
		var weighted float64
		for _, c := range layer.Cells {
			p, v := c.Measures[popField], c.Measures[m.Source]
			if p.Valid && v.Valid {
				weighted += p.Value * v.Value
			}
		}
		city.set(m.Destination, hexagg.Some(weighted/popTotal))
	}
	return city, nil
}
