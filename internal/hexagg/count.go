package hexagg

import "go.uber.org/zap"

// CountSamplePoints returns the cells that contain at least one sample point,
// with the number of points written under destination. Cells without points
// are dropped.
func CountSamplePoints(cells HexLayer, points SampleSet, destination string) (HexLayer, error) {
	if !points.HasField(FieldHexID) {
		return HexLayer{}, schemaError("count sample points", FieldHexID)
	}

	counts := make(map[string]int)
	for _, p := range points.Points {
		if p.HexID != "" {
			counts[p.HexID]++
		}
	}

	src := cells.Clone()
	out := HexLayer{Columns: src.Columns}
	for _, c := range src.Cells {
		n, ok := counts[c.Index]
		if !ok {
			continue
		}
		c.Measures[destination] = Some(float64(n))
		out.Cells = append(out.Cells, c)
	}
	if !out.HasColumn(destination) {
		out.Columns = append(out.Columns, destination)
	}

	zap.L().Debug("hexagg: counted sample points",
		zap.Int("cells_in", cells.Len()),
		zap.Int("cells_out", out.Len()),
		zap.Int("points", len(points.Points)),
	)
	return out, nil
}

// ScaleColumns multiplies every value in the named columns by factor. Nulls
// stay null.
func ScaleColumns(cells HexLayer, names []string, factor float64) (HexLayer, error) {
	for _, n := range names {
		if !cells.HasColumn(n) {
			return HexLayer{}, schemaError("scale columns", n)
		}
	}

	out := cells.Clone()
	for i := range out.Cells {
		for _, n := range names {
			if v, ok := out.Cells[i].Measures[n]; ok && v.Valid {
				out.Cells[i].Measures[n] = Some(v.Value * factor)
			}
		}
	}
	return out, nil
}

// LabelStudyRegion sets the study region on every cell unless the layer
// already carries a study_region column.
func LabelStudyRegion(cells HexLayer, name string) HexLayer {
	out := cells.Clone()
	if out.HasColumn(ColumnStudyRegion) {
		return out
	}
	for i := range out.Cells {
		out.Cells[i].StudyRegion = name
	}
	out.Columns = append(out.Columns, ColumnStudyRegion)
	return out
}
