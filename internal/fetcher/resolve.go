package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// preferredExts orders the members picked from an archive when the caller
// does not name one.
var preferredExts = []string{".shp", ".geojson", ".json", ".csv"}

// Resolver turns input URIs into local file paths. Remote inputs are
// downloaded into TempDir; ZIP archives are extracted next to them.
type Resolver struct {
	HTTP    Fetcher
	FTP     Fetcher
	TempDir string
}

// Resolve accepts a local path, an http(s) URL or an ftp URL. A "#member"
// suffix selects a file inside a ZIP archive; without it the first member
// with a known extension is used.
func (r *Resolver) Resolve(ctx context.Context, uri string) (string, error) {
	location, member, _ := strings.Cut(uri, "#")

	local, err := r.fetch(ctx, location)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, nil
	}

	destDir := strings.TrimSuffix(local, filepath.Ext(local))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "resolve: create extract dir")
	}
	var keep MemberFilter
	if member != "" {
		keep = SameStem(member)
	}
	files, err := ExtractZIP(local, destDir, keep)
	if err != nil {
		return "", err
	}

	picked := pickMember(files, destDir, member)
	if picked == "" {
		return "", eris.Errorf("resolve: no usable member in %s (wanted %q)", uri, member)
	}
	zap.L().Debug("resolve: picked archive member", zap.String("archive", local), zap.String("member", picked))
	return picked, nil
}

func (r *Resolver) fetch(ctx context.Context, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, including Windows drive letters.
		if _, statErr := os.Stat(location); statErr != nil {
			return "", eris.Wrapf(statErr, "resolve: stat %s", location)
		}
		return location, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	case "file":
		return u.Path, nil
	default:
		return "", eris.Errorf("resolve: unsupported scheme %q", u.Scheme)
	}
	if f == nil {
		return "", eris.Errorf("resolve: no fetcher configured for %s", u.Scheme)
	}

	dir := filepath.Join(r.TempDir, urlKey(u))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "resolve: create download dir")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, location, dest)
	if err != nil {
		return "", eris.Wrapf(err, "resolve: download %s", u.Redacted())
	}
	zap.L().Info("resolve: downloaded input",
		zap.String("url", u.Redacted()),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// urlKey names the download directory of one URL, so inputs that share a
// file name ("odense/hex.zip", "aarhus/hex.zip") never share a path.
func urlKey(u *url.URL) string {
	sum := sha256.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:8])
}

func pickMember(files []string, destDir, member string) string {
	if member != "" {
		want := filepath.Join(destDir, member)
		if slices.Contains(files, want) {
			return want
		}
		return ""
	}
	for _, ext := range preferredExts {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f
			}
		}
	}
	return ""
}
