package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/indicators-cli/internal/config"
	"github.com/sells-group/indicators-cli/internal/hexagg"
	"github.com/sells-group/indicators-cli/internal/indicators"
	"github.com/sells-group/indicators-cli/internal/layer"
)

// CitiesFile is the GeoJSON file name holding the city summaries.
const CitiesFile = "cities.geojson"

// HexFileSuffix ends every per-region hex GeoJSON file name.
const HexFileSuffix = "_hex.geojson"

// Slug folds a study region name into a file-name friendly form:
// "Ålborg Øst" becomes "alborg_ost".
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == 'ø':
			b.WriteRune('o')
			lastUnderscore = false
		case r == 'æ':
			b.WriteString("ae")
			lastUnderscore = false
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// HexFileName returns the GeoJSON file name for a region's hex layer.
func HexFileName(region string) string {
	return Slug(region) + HexFileSuffix
}

// checkFileNames rejects regions whose hex files would overwrite each other.
func checkFileNames(regions []config.Region) error {
	owner := make(map[string]string, len(regions))
	for _, r := range regions {
		if Slug(r.Name) == "" {
			return eris.Errorf("pipeline: region %q has no usable file name", r.Name)
		}
		name := HexFileName(r.Name)
		if prev, ok := owner[name]; ok {
			return eris.Errorf("pipeline: regions %q and %q share output file %s", prev, r.Name, name)
		}
		owner[name] = r.Name
	}
	return nil
}

func (p *Pipeline) writeOutputs(ctx context.Context, res *Result) error {
	out := p.cfg.Output

	if out.Dir != "" {
		if err := p.track(ctx, "write geojson", func(context.Context) error {
			files, err := WriteGeoJSONDir(out.Dir, res.Regions, res.Cities)
			res.Files = append(res.Files, files...)
			return err
		}); err != nil {
			return err
		}
	}

	if out.XLSX != "" {
		if err := p.track(ctx, "write xlsx", func(context.Context) error {
			layers := make([]hexagg.HexLayer, len(res.Regions))
			for i, r := range res.Regions {
				layers[i] = r.Layer
			}
			if err := os.MkdirAll(filepath.Dir(out.XLSX), 0o755); err != nil {
				return eris.Wrap(err, "pipeline: create xlsx dir")
			}
			if err := layer.WriteXLSX(out.XLSX, layers, res.Cities); err != nil {
				return err
			}
			res.Files = append(res.Files, out.XLSX)
			return nil
		}); err != nil {
			return err
		}
	}

	if p.sink != nil {
		for _, r := range res.Regions {
			if err := p.track(ctx, regionTask("write postgis", r.Region), func(ctx context.Context) error {
				_, err := p.sink.WriteHexes(ctx, r.Region, r.Layer)
				return err
			}); err != nil {
				return err
			}
		}
		if len(res.Cities) > 0 {
			if err := p.track(ctx, "write postgis cities", func(ctx context.Context) error {
				_, err := p.sink.WriteCities(ctx, res.Cities)
				return err
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteGeoJSONDir writes one hex GeoJSON per region plus the cities file
// into dir and returns the written paths.
func WriteGeoJSONDir(dir string, regions []RegionLayer, cities []indicators.CityIndicators) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create output dir %s", dir)
	}

	var files []string
	for _, r := range regions {
		path := filepath.Join(dir, HexFileName(r.Region))
		if err := writeFile(path, func(f *os.File) error { return layer.WriteHexGeoJSON(f, r.Layer) }); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	if len(cities) > 0 {
		path := filepath.Join(dir, CitiesFile)
		if err := writeFile(path, func(f *os.File) error { return layer.WriteCityGeoJSON(f, cities) }); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	zap.L().Info("pipeline: wrote geojson", zap.String("dir", dir), zap.Int("files", len(files)))
	return files, nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}
