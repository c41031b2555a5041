package indicators

import (
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/hexagg"
)

// ZScores standardises each mapping Source against the pooled cells of all
// layers and writes the score under Destination. sumField receives the row sum
// of all destinations; pass "" to skip it.
func ZScores(layers []hexagg.HexLayer, mapping []hexagg.FieldMapping, sumField string) ([]hexagg.HexLayer, error) {
	for _, l := range layers {
		for _, m := range mapping {
			if !l.HasColumn(m.Source) {
				return nil, &hexagg.InputSchemaError{Operation: "z-scores", Field: m.Source}
			}
		}
	}

	out := make([]hexagg.HexLayer, len(layers))
	for i, l := range layers {
		out[i] = l.Clone()
	}

	for _, m := range mapping {
		var pooled []hexagg.Measure
		for _, l := range layers {
			for _, c := range l.Cells {
				pooled = append(pooled, c.Measures[m.Source])
			}
		}
		mean, std, ok := meanStd(pooled)
		zap.L().Debug("indicators: pooled statistics",
			zap.String("field", m.Source),
			zap.Float64("mean", mean),
			zap.Float64("std", std),
			zap.Int("cells", len(pooled)),
		)

		for i := range out {
			for j := range out[i].Cells {
				c := &out[i].Cells[j]
				c.Measures[m.Destination] = zscore(c.Measures[m.Source], mean, std, ok)
			}
			if !out[i].HasColumn(m.Destination) {
				out[i].Columns = append(out[i].Columns, m.Destination)
			}
		}
	}

	if sumField == "" {
		return out, nil
	}
	dests := hexagg.Destinations(mapping)
	for i := range out {
		for j := range out[i].Cells {
			c := &out[i].Cells[j]
			vals := make([]hexagg.Measure, len(dests))
			for k, d := range dests {
				vals[k] = c.Measures[d]
			}
			c.Measures[sumField] = rowSum(vals...)
		}
		if !out[i].HasColumn(sumField) {
			out[i].Columns = append(out[i].Columns, sumField)
		}
	}
	return out, nil
}

// CityZScores applies the same standardisation across city summaries.
func CityZScores(cities []CityIndicators, mapping []hexagg.FieldMapping, sumField string) ([]CityIndicators, error) {
	for _, c := range cities {
		for _, m := range mapping {
			if _, ok := c.Measures[m.Source]; !ok {
				return nil, &hexagg.InputSchemaError{Operation: "city z-scores", Field: m.Source}
			}
		}
	}

	out := make([]CityIndicators, len(cities))
	for i, c := range cities {
		out[i] = c.clone()
	}

	for _, m := range mapping {
		pooled := make([]hexagg.Measure, len(cities))
		for i, c := range cities {
			pooled[i] = c.Measures[m.Source]
		}
		mean, std, ok := meanStd(pooled)
		for i := range out {
			out[i].set(m.Destination, zscore(out[i].Measures[m.Source], mean, std, ok))
		}
	}

	if sumField != "" {
		dests := hexagg.Destinations(mapping)
		for i := range out {
			vals := make([]hexagg.Measure, len(dests))
			for k, d := range dests {
				vals[k] = out[i].Measures[d]
			}
			out[i].set(sumField, rowSum(vals...))
		}
	}
	return out, nil
}
