package fetcher

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MemberFilter reports whether an archive member should be extracted. A nil
// filter keeps every member.
type MemberFilter func(name string) bool

// SameStem keeps the named member and every sibling sharing its stem, so
// "grid/odense.shp" also brings "grid/odense.dbf" and "grid/odense.shx".
func SameStem(member string) MemberFilter {
	stem := strings.TrimSuffix(path.Clean(member), path.Ext(member))
	return func(name string) bool {
		return strings.EqualFold(strings.TrimSuffix(name, path.Ext(name)), stem)
	}
}

// ExtractZIP writes the members of zipPath accepted by keep under destDir and
// returns their paths in archive order.
func ExtractZIP(zipPath, destDir string, keep MemberFilter) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open archive %s", zipPath)
	}
	defer zr.Close() //nolint:errcheck

	var out []string
	for _, m := range zr.File {
		if m.FileInfo().IsDir() || (keep != nil && !keep(m.Name)) {
			continue
		}
		p, err := writeMember(m, destDir)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ExtractAll unpacks every .zip directly inside srcDir into destDir with at
// most workers archives open at once. The returned paths are sorted.
func ExtractAll(ctx context.Context, srcDir, destDir string, workers int) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: read directory %s", srcDir)
	}

	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			archives = append(archives, filepath.Join(srcDir, e.Name()))
		}
	}

	// One slot per archive; no locking needed.
	results := make([][]string, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, archive := range archives {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "zip: cancelled")
			}
			files, err := ExtractZIP(archive, destDir, nil)
			if err != nil {
				return err
			}
			zap.L().Info("zip: extracted archive", zap.String("archive", archive), zap.Int("files", len(files)))
			results[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := slices.Concat(results...)
	slices.Sort(all)
	return all, nil
}

// writeMember copies one regular member to destDir, refusing names that
// would land outside it.
func writeMember(m *zip.File, destDir string) (string, error) {
	rel := filepath.FromSlash(m.Name)
	if !filepath.IsLocal(rel) {
		return "", eris.Errorf("zip: member %q escapes the extraction directory", m.Name)
	}
	dest := filepath.Join(destDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrapf(err, "zip: prepare %s", filepath.Dir(dest))
	}

	src, err := m.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open member %s", m.Name)
	}
	defer src.Close() //nolint:errcheck

	if _, err := saveFile(io.LimitReader(src, int64(m.UncompressedSize64)), dest); err != nil {
		return "", eris.Wrapf(err, "zip: extract %s", m.Name)
	}
	return dest, nil
}
