package db

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
	"github.com/sells-group/indicators-cli/internal/layer"
)

const (
	hexTable  = "indicators.hex"
	cityTable = "indicators.city"
)

var (
	hexUpsert = UpsertConfig{
		Table:   hexTable,
		Columns: []string{"study_region", "hex_index", "measures", "geom"},
		Keys:    []string{"study_region", "hex_index"},
		Touch:   "updated_at",
		Scope:   "study_region",
	}
	cityUpsert = UpsertConfig{
		Table:   cityTable,
		Columns: []string{"study_region", "measures"},
		Keys:    []string{"study_region"},
		Touch:   "updated_at",
	}
)

// HexWriter upserts aggregated hex layers and city summaries into PostGIS.
type HexWriter struct {
	pool Pool
}

// NewHexWriter creates a HexWriter on the given pool.
func NewHexWriter(pool Pool) *HexWriter {
	return &HexWriter{pool: pool}
}

// Migrate creates the indicators tables.
func (w *HexWriter) Migrate(ctx context.Context) error {
	return Migrate(ctx, w.pool)
}

// measureDoc renders the measure columns of a row as a jsonb document. Nulls
// stay JSON null.
func measureDoc(columns []string, measures map[string]hexagg.Measure) map[string]any {
	doc := make(map[string]any, len(columns))
	for _, col := range columns {
		switch col {
		case hexagg.ColumnIndex, hexagg.ColumnStudyRegion, hexagg.ColumnGeometry:
			continue
		}
		if m := measures[col]; m.Valid {
			doc[col] = m.Value
		} else {
			doc[col] = nil
		}
	}
	return doc
}

// WriteHexes upserts every cell of l under region and removes stored hexes of
// that region the layer no longer has. A cell's own study_region takes
// precedence when set. An empty layer clears the region.
func (w *HexWriter) WriteHexes(ctx context.Context, region string, l hexagg.HexLayer) (int64, error) {
	if len(l.Cells) == 0 {
		n, err := ClearScope(ctx, w.pool, hexUpsert, region)
		if err != nil {
			return 0, eris.Wrapf(err, "db: write hexes for %s", region)
		}
		zap.L().Info("db: cleared hexes of empty layer", zap.String("study_region", region), zap.Int64("pruned", n))
		return 0, nil
	}
	withGeom := l.HasColumn(hexagg.ColumnGeometry)

	rows := make([][]any, 0, len(l.Cells))
	for _, c := range l.Cells {
		sr := c.StudyRegion
		if sr == "" {
			sr = region
		}

		var wkb []byte
		if withGeom {
			var err error
			if wkb, err = layer.EncodeEWKB(c.Geometry); err != nil {
				return 0, eris.Wrapf(err, "db: encode geometry for hex %s", c.Index)
			}
		}
		rows = append(rows, []any{sr, c.Index, measureDoc(l.Columns, c.Measures), wkb})
	}

	res, err := UpsertRows(ctx, w.pool, hexUpsert, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "db: write hexes for %s", region)
	}
	zap.L().Info("db: wrote hexes",
		zap.String("study_region", region),
		zap.Int64("rows", res.Upserted),
		zap.Int64("pruned", res.Pruned),
	)
	return res.Upserted, nil
}

// WriteCities upserts one row per city summary.
func (w *HexWriter) WriteCities(ctx context.Context, cities []indicators.CityIndicators) (int64, error) {
	rows := make([][]any, 0, len(cities))
	for _, c := range cities {
		rows = append(rows, []any{c.StudyRegion, measureDoc(c.Columns, c.Measures)})
	}

	res, err := UpsertRows(ctx, w.pool, cityUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: write cities")
	}
	zap.L().Info("db: wrote cities", zap.Int64("rows", res.Upserted))
	return res.Upserted, nil
}
