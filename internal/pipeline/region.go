package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/config"
	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/layer"
)

// AggregateRegion reads one region's inputs and produces its hex layer:
// assign missing hex ids, count sample points, aggregate the configured
// fields, scale proportions to percentages, label the study region and
// select the output columns.
func (p *Pipeline) AggregateRegion(ctx context.Context, r config.Region) (RegionLayer, error) {
	log := zap.L().With(zap.String("study_region", r.Name))
	ac := p.cfg.Aggregate

	hexPath, err := p.resolver.Resolve(ctx, r.Hexes)
	if err != nil {
		return RegionLayer{}, eris.Wrapf(err, "pipeline: resolve hexes for %s", r.Name)
	}
	pointPath, err := p.resolver.Resolve(ctx, r.Points)
	if err != nil {
		return RegionLayer{}, eris.Wrapf(err, "pipeline: resolve points for %s", r.Name)
	}

	cells, err := layer.ReadHexes(hexPath, ac.IndexField)
	if err != nil {
		return RegionLayer{}, eris.Wrapf(err, "pipeline: read hexes for %s", r.Name)
	}
	points, err := layer.ReadPoints(ctx, pointPath, ac.HexIDField)
	if err != nil {
		return RegionLayer{}, eris.Wrapf(err, "pipeline: read points for %s", r.Name)
	}
	log.Info("pipeline: inputs loaded", zap.Int("hexes", cells.Len()), zap.Int("points", len(points.Points)))

	if needsAssignment(points) {
		points = hexagg.AssignHexIDs(points, cells)
	}

	out := cells
	if ac.CountField != "" {
		if out, err = hexagg.CountSamplePoints(out, points, ac.CountField); err != nil {
			return RegionLayer{}, eris.Wrapf(err, "pipeline: count sample points for %s", r.Name)
		}
	}
	if out, err = hexagg.Aggregate(out, points, ac.Fields); err != nil {
		return RegionLayer{}, eris.Wrapf(err, "pipeline: aggregate %s", r.Name)
	}
	if len(ac.PercentFields) > 0 {
		if out, err = hexagg.ScaleColumns(out, ac.PercentFields, 100); err != nil {
			return RegionLayer{}, eris.Wrapf(err, "pipeline: scale percentages for %s", r.Name)
		}
	}
	out = hexagg.LabelStudyRegion(out, r.Name)

	selected := out
	if len(ac.Columns) > 0 {
		selected = hexagg.SelectColumns(out, ac.Columns)
	}

	log.Info("pipeline: region aggregated",
		zap.Int("hexes_in", cells.Len()),
		zap.Int("hexes_out", selected.Len()),
		zap.Strings("columns", selected.Columns),
	)
	return RegionLayer{Region: r.Name, Full: out, Layer: selected}, nil
}

// needsAssignment reports whether any located point lacks a hex id.
func needsAssignment(points hexagg.SampleSet) bool {
	for _, pt := range points.Points {
		if pt.HexID == "" && pt.Geometry != nil {
			return true
		}
	}
	return false
}
