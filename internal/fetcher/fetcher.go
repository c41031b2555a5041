// Package fetcher brings remote and archived inputs onto local disk: HTTP and
// FTP downloads, ZIP extraction, and a streaming CSV reader.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download opens the URL; the caller closes the body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile stores the URL at path and reports the bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// saveFile streams body into a sibling temp file and renames it over path,
// so an interrupted transfer never leaves a truncated input behind.
func saveFile(body io.Reader, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "create temp file")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	committed = true
	return n, nil
}
