package layer

import (
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// CitySheet is the name of the sheet holding city summaries.
const CitySheet = "cities"

func sheetName(name string, i int, used map[string]bool) string {
	if name == "" {
		name = fmt.Sprintf("layer_%d", i+1)
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		name = base
		if len(name)+len(suffix) > maxSheetName {
			name = name[:maxSheetName-len(suffix)]
		}
		name += suffix
	}
	used[name] = true
	return name
}

func addMeasureCell(row *xlsx.Row, m hexagg.Measure) {
	cell := row.AddCell()
	if m.Valid {
		cell.SetFloat(m.Value)
	}
}

// WriteXLSX writes one sheet per hex layer, named after its study region, plus
// a cities sheet when cities is non-empty. Geometry columns are omitted.
func WriteXLSX(path string, layers []hexagg.HexLayer, cities []indicators.CityIndicators) error {
	f := xlsx.NewFile()
	used := map[string]bool{CitySheet: len(cities) > 0}

	for i, l := range layers {
		region := ""
		if len(l.Cells) > 0 {
			region = l.Cells[0].StudyRegion
		}
		sheet, err := f.AddSheet(sheetName(region, i, used))
		if err != nil {
			return eris.Wrapf(err, "layer: add sheet for %q", region)
		}

		cols := slices.DeleteFunc(slices.Clone(l.Columns), func(c string) bool { return c == hexagg.ColumnGeometry })
		header := sheet.AddRow()
		for _, c := range cols {
			header.AddCell().SetString(c)
		}
		for _, c := range l.Cells {
			row := sheet.AddRow()
			for _, col := range cols {
				switch col {
				case hexagg.ColumnIndex:
					row.AddCell().SetString(c.Index)
				case hexagg.ColumnStudyRegion:
					row.AddCell().SetString(c.StudyRegion)
				default:
					addMeasureCell(row, c.Measures[col])
				}
			}
		}
	}

	if len(cities) > 0 {
		sheet, err := f.AddSheet(CitySheet)
		if err != nil {
			return eris.Wrap(err, "layer: add cities sheet")
		}
		var cols []string
		for _, c := range cities {
			for _, col := range c.Columns {
				if !slices.Contains(cols, col) {
					cols = append(cols, col)
				}
			}
		}
		header := sheet.AddRow()
		header.AddCell().SetString(hexagg.ColumnStudyRegion)
		for _, c := range cols {
			header.AddCell().SetString(c)
		}
		for _, c := range cities {
			row := sheet.AddRow()
			row.AddCell().SetString(c.StudyRegion)
			for _, col := range cols {
				addMeasureCell(row, c.Measures[col])
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "layer: save workbook %s", path)
	}
	return nil
}
