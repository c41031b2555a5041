package hexagg

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type partition struct {
	sum   float64
	count int
}

// Aggregate returns a copy of cells with one column per mapping pair. For each
// pair the points are grouped by hex_id, the mean of Source is taken over the
// valid values of each group, and the result is left-joined onto cells by
// index under Destination. Cells without matching points get a null value.
//
// Pairs are applied in order; a later pair overwrites a column written by an
// earlier one. Overwriting a column that existed before the call is allowed
// and logged as a warning.
func Aggregate(cells HexLayer, points SampleSet, mapping []FieldMapping) (HexLayer, error) {
	if err := validateMapping(cells, points, mapping); err != nil {
		return HexLayer{}, err
	}

	out := cells.Clone()
	if len(mapping) == 0 {
		return out, nil
	}

	existing := make(map[string]bool, len(cells.Columns))
	for _, c := range cells.Columns {
		existing[c] = true
	}
	written := make(map[string]string, len(mapping))

	for _, m := range mapping {
		if existing[m.Destination] {
			zap.L().Warn("hexagg: aggregate overwrites existing column",
				zap.String("column", m.Destination),
				zap.String("source", m.Source),
			)
		} else if prev, ok := written[m.Destination]; ok {
			zap.L().Warn("hexagg: mapping writes destination more than once",
				zap.String("column", m.Destination),
				zap.String("previous_source", prev),
				zap.String("source", m.Source),
			)
		}
		written[m.Destination] = m.Source

		means := groupMean(points, m.Source)
		for i := range out.Cells {
			c := &out.Cells[i]
			if v, ok := means[c.Index]; ok {
				c.Measures[m.Destination] = v
			} else {
				c.Measures[m.Destination] = Null
			}
		}
		if !out.HasColumn(m.Destination) {
			out.Columns = append(out.Columns, m.Destination)
		}
	}

	return out, nil
}

func validateMapping(cells HexLayer, points SampleSet, mapping []FieldMapping) error {
	if len(mapping) == 0 {
		return nil
	}
	if !points.HasField(FieldHexID) {
		return schemaError("aggregate", FieldHexID)
	}
	for _, m := range mapping {
		if !points.HasField(m.Source) {
			return schemaError("aggregate", m.Source)
		}
		switch m.Destination {
		case ColumnIndex, ColumnStudyRegion, ColumnGeometry:
			return eris.Errorf("hexagg: aggregate: destination %q is a reserved column", m.Destination)
		case "":
			return eris.Errorf("hexagg: aggregate: empty destination for source %q", m.Source)
		}
	}
	return nil
}

// groupMean partitions points by hex_id and returns the mean of field per
// partition. Partitions with no valid value map to Null.
func groupMean(points SampleSet, field string) map[string]Measure {
	parts := make(map[string]*partition)
	for _, p := range points.Points {
		if p.HexID == "" {
			continue
		}
		part, ok := parts[p.HexID]
		if !ok {
			part = &partition{}
			parts[p.HexID] = part
		}
		if v, ok := p.Measures[field]; ok && v.Valid {
			part.sum += v.Value
			part.count++
		}
	}

	out := make(map[string]Measure, len(parts))
	for id, part := range parts {
		if part.count == 0 {
			out[id] = Null
			continue
		}
		out[id] = Some(part.sum / float64(part.count))
	}
	return out
}
