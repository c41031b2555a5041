// Package hexagg joins sample point measurements onto a hexagonal grid.
//
// A HexLayer is an ordered column schema plus one HexCell per grid cell. A
// SampleSet carries point observations keyed to cells by hex_id. Aggregate
// computes per-cell means for a list of field mappings; SelectColumns trims a
// layer to a desired schema. Both return new layers and never mutate input.
package hexagg

import (
	"maps"
	"math"
	"slices"

	"github.com/twpayne/go-geom"
)

// Reserved column names. They map to typed fields on HexCell rather than to
// entries in Measures.
const (
	ColumnIndex       = "index"
	ColumnStudyRegion = "study_region"
	ColumnGeometry    = "geometry"
	FieldHexID        = "hex_id"
)

// Measure is a nullable numeric value.
type Measure struct {
	Value float64
	Valid bool
}

// Some returns a valid Measure. NaN is treated as null.
func Some(v float64) Measure {
	if math.IsNaN(v) {
		return Measure{}
	}
	return Measure{Value: v, Valid: true}
}

// Null is the absent value.
var Null = Measure{}

// HexCell is one cell of the spatial partition.
type HexCell struct {
	Index       string
	StudyRegion string
	Geometry    geom.T
	Measures    map[string]Measure
}

// HexLayer is the full set of cells for one study region.
type HexLayer struct {
	Columns []string
	Cells   []HexCell
}

// HasColumn reports whether name is part of the layer schema.
func (l HexLayer) HasColumn(name string) bool {
	return slices.Contains(l.Columns, name)
}

// Len returns the number of cells.
func (l HexLayer) Len() int { return len(l.Cells) }

// Clone returns a deep copy of the layer. Geometries are shared; nothing in
// this package modifies them.
func (l HexLayer) Clone() HexLayer {
	out := HexLayer{
		Columns: slices.Clone(l.Columns),
		Cells:   make([]HexCell, len(l.Cells)),
	}
	for i, c := range l.Cells {
		c.Measures = maps.Clone(c.Measures)
		if c.Measures == nil {
			c.Measures = map[string]Measure{}
		}
		out.Cells[i] = c
	}
	return out
}

// SamplePoint is a single observation. An empty HexID means the point is not
// linked to any cell.
type SamplePoint struct {
	HexID    string
	Geometry *geom.Point
	Measures map[string]Measure
}

// SampleSet holds points and the fields present at their source.
type SampleSet struct {
	Fields []string
	Points []SamplePoint
}

// HasField reports whether the source carried the named field.
func (s SampleSet) HasField(name string) bool {
	return slices.Contains(s.Fields, name)
}

// FieldMapping pairs a sample point field with the hex column it feeds.
type FieldMapping struct {
	Source      string `yaml:"source" mapstructure:"source" json:"source"`
	Destination string `yaml:"destination" mapstructure:"destination" json:"destination"`
}

// Destinations returns the destination names of mapping, in order.
func Destinations(mapping []FieldMapping) []string {
	out := make([]string, len(mapping))
	for i, m := range mapping {
		out[i] = m.Destination
	}
	return out
}
