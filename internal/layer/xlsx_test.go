package layer

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
)

func TestSheetName(t *testing.T) {
	used := map[string]bool{CitySheet: true}
	assert.Equal(t, "odense", sheetName("odense", 0, used))
	assert.Equal(t, "odense_2", sheetName("odense", 1, used))
	assert.Equal(t, "layer_3", sheetName("", 2, used))
	assert.Equal(t, "cities_2", sheetName("cities", 3, used))

	long := strings.Repeat("a", 40)
	assert.Len(t, sheetName(long, 4, used), maxSheetName)
	assert.Len(t, sheetName(long, 5, used), maxSheetName)
}

func TestWriteXLSX(t *testing.T) {
	layers := []hexagg.HexLayer{{
		Columns: []string{hexagg.ColumnIndex, hexagg.ColumnStudyRegion, "avg_walk", hexagg.ColumnGeometry},
		Cells: []hexagg.HexCell{
			{Index: "1", StudyRegion: "odense", Measures: map[string]hexagg.Measure{"avg_walk": hexagg.Some(2.5)}},
			{Index: "2", StudyRegion: "odense", Measures: map[string]hexagg.Measure{"avg_walk": hexagg.Null}},
		},
	}}
	cities := []indicators.CityIndicators{{
		StudyRegion: "odense",
		Columns:     []string{"urban_sample_point_count"},
		Measures:    map[string]hexagg.Measure{"urban_sample_point_count": hexagg.Some(12)},
	}}

	path := filepath.Join(t.TempDir(), "indicators.xlsx")
	require.NoError(t, WriteXLSX(path, layers, cities))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	hex := f.Sheets[0]
	assert.Equal(t, "odense", hex.Name)
	require.Len(t, hex.Rows, 3)
	header := hex.Rows[0].Cells
	require.Len(t, header, 3)
	assert.Equal(t, "index", header[0].Value)
	assert.Equal(t, "study_region", header[1].Value)
	assert.Equal(t, "avg_walk", header[2].Value)

	v, err := strconv.ParseFloat(hex.Rows[1].Cells[2].Value, 64)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-9)
	assert.Empty(t, cellValue(hex.Rows[2], 2))

	city := f.Sheets[1]
	assert.Equal(t, CitySheet, city.Name)
	assert.Equal(t, "odense", city.Rows[1].Cells[0].Value)
}

func cellValue(row *xlsx.Row, i int) string {
	if i >= len(row.Cells) {
		return ""
	}
	return row.Cells[i].Value
}
