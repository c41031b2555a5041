package hexagg

import "slices"

// SelectColumns returns a copy of cells restricted to the columns named in
// desired. Column order follows cells, not desired. Names in desired that the
// layer does not have are ignored.
func SelectColumns(cells HexLayer, desired []string) HexLayer {
	keep := make(map[string]bool, len(desired))
	for _, d := range desired {
		keep[d] = true
	}

	out := cells.Clone()
	out.Columns = slices.DeleteFunc(out.Columns, func(c string) bool { return !keep[c] })

	keepRegion := keep[ColumnStudyRegion] && cells.HasColumn(ColumnStudyRegion)
	keepGeom := keep[ColumnGeometry] && cells.HasColumn(ColumnGeometry)

	for i := range out.Cells {
		c := &out.Cells[i]
		if !keepRegion {
			c.StudyRegion = ""
		}
		if !keepGeom {
			c.Geometry = nil
		}
		for name := range c.Measures {
			if !keep[name] || !cells.HasColumn(name) {
				delete(c.Measures, name)
			}
		}
	}
	return out
}
