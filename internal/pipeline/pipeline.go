// Package pipeline runs the indicator workflow across study regions: fetch
// inputs, aggregate sample points onto each hex grid, standardise across
// cities, roll up to city level and write every configured output.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/indicators-cli/internal/config"
	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
	"github.com/sells-group/indicators-cli/internal/store"
)

// Resolver turns an input reference into a local file path.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (string, error)
}

// HexSink persists aggregated layers and city summaries.
type HexSink interface {
	WriteHexes(ctx context.Context, region string, l hexagg.HexLayer) (int64, error)
	WriteCities(ctx context.Context, cities []indicators.CityIndicators) (int64, error)
}

// Pipeline orchestrates the per-region and cross-city stages.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	resolver Resolver
	sink     HexSink
}

// New creates a Pipeline. sink may be nil when PostGIS output is disabled.
func New(cfg *config.Config, st store.Store, resolver Resolver, sink HexSink) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		sink:     sink,
	}
}

// RegionLayer is the outcome of aggregating one study region.
type RegionLayer struct {
	Region string
	// Full keeps every input column; the city rollup reads population from it.
	Full hexagg.HexLayer
	// Layer is Full restricted to the configured output columns.
	Layer hexagg.HexLayer
}

// Result collects everything a run produced.
type Result struct {
	Regions []RegionLayer
	Cities  []indicators.CityIndicators
	Files   []string
}

// Run processes every region, then the cross-city stages and the outputs.
func (p *Pipeline) Run(ctx context.Context, regions []config.Region) (*Result, error) {
	if len(regions) == 0 {
		return nil, eris.New("pipeline: no regions")
	}
	if err := checkFileNames(regions); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.Int("regions", len(regions)))
	log.Info("pipeline: starting run")

	res := &Result{Regions: make([]RegionLayer, len(regions))}

	limit := p.cfg.Pipeline.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range regions {
		g.Go(func() error {
			return p.track(gCtx, regionTask("aggregate", r.Name), func(ctx context.Context) error {
				rl, err := p.AggregateRegion(ctx, r)
				if err != nil {
					return err
				}
				res.Regions[i] = rl
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.track(ctx, "all cities z-scores", func(context.Context) error {
		return p.crossCity(res)
	}); err != nil {
		return nil, err
	}

	if err := p.track(ctx, "city rollup", func(context.Context) error {
		cities, err := p.rollup(res.Regions)
		if err != nil {
			return err
		}
		res.Cities = cities
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.writeOutputs(ctx, res); err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete", zap.Int("cities", len(res.Cities)), zap.Int("files", len(res.Files)))
	return res, nil
}

// crossCity adds the all-cities z-scores to every output layer.
func (p *Pipeline) crossCity(res *Result) error {
	if len(p.cfg.Cities.ZScores) == 0 {
		return nil
	}
	layers := make([]hexagg.HexLayer, len(res.Regions))
	for i, r := range res.Regions {
		layers[i] = r.Layer
	}
	scored, err := indicators.ZScores(layers, p.cfg.Cities.ZScores, p.cfg.Cities.WalkabilityField)
	if err != nil {
		return eris.Wrap(err, "pipeline: all cities z-scores")
	}
	for i := range res.Regions {
		res.Regions[i].Layer = scored[i]
	}
	return nil
}

// rollup builds one CityIndicators per region and standardises them.
func (p *Pipeline) rollup(regions []RegionLayer) ([]indicators.CityIndicators, error) {
	if len(p.cfg.Cities.Rollup) == 0 {
		return nil, nil
	}
	cities := make([]indicators.CityIndicators, 0, len(regions))
	for _, r := range regions {
		c, err := indicators.RollupCity(r.Full, r.Region, p.cfg.Aggregate.PopulationField, p.cfg.Aggregate.CountField, p.cfg.Cities.Rollup)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: city rollup for %s", r.Region)
		}
		cities = append(cities, c)
	}
	if len(p.cfg.Cities.CityZScores) == 0 {
		return cities, nil
	}
	scored, err := indicators.CityZScores(cities, p.cfg.Cities.CityZScores, p.cfg.Cities.CityWalkabilityField)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: city z-scores")
	}
	return scored, nil
}

// track records fn in the run log when a store is configured.
func (p *Pipeline) track(ctx context.Context, task string, fn func(context.Context) error) error {
	if p.store == nil {
		return fn(ctx)
	}
	return store.Track(ctx, p.store, p.script(), task, fn)
}

func (p *Pipeline) script() string {
	if p.cfg.Pipeline.Script != "" {
		return p.cfg.Pipeline.Script
	}
	return "indicators-cli"
}

func regionTask(stage, region string) string {
	return fmt.Sprintf("%s %s", stage, region)
}
