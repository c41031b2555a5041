package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	ftpDefaultPort = "21"
	ftpAnonUser    = "anonymous"
	ftpAnonPass    = "anonymous@"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher pulls inputs from FTP servers. Each download uses its own
// control connection; URL user info overrides the anonymous login.
type FTPFetcher struct {
	timeout time.Duration
}

// NewFTPFetcher creates an FTPFetcher. A zero timeout means 30s.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	f := &FTPFetcher{timeout: opts.Timeout}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	return f
}

type ftpTarget struct {
	host, path, user, pass string
}

func parseFTPURL(raw string) (ftpTarget, error) {
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	case u.Scheme != "ftp":
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	case u.Path == "" || u.Path == "/":
		return ftpTarget{}, eris.Errorf("ftp: empty path in %s", u.Redacted())
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: ftpAnonUser, pass: ftpAnonPass}
	if u.Port() == "" {
		t.host = net.JoinHostPort(u.Hostname(), ftpDefaultPort)
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	return t, nil
}

// ftpBody is a RETR transfer that also ends the session when closed.
type ftpBody struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	errs := []error{b.Response.Close(), b.conn.Quit()}
	for _, err := range errs {
		if err != nil {
			return eris.Wrap(err, "ftp: close transfer")
		}
	}
	return nil
}

func (f *FTPFetcher) login(ctx context.Context, t ftpTarget) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp dial %s", t.host)
	}
	if err := conn.Login(t.user, t.pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp login as %s", t.user)
	}
	return conn, nil
}

// Download starts a RETR for the URL path. Closing the body ends the session.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := f.login(ctx, t)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("host", t.host), zap.String("path", t.path))
	if size, sizeErr := conn.FileSize(t.path); sizeErr == nil {
		log.Debug("ftp: retrieving", zap.Int64("size", size))
	} else {
		log.Debug("ftp: retrieving, size unknown", zap.Error(sizeErr))
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp retrieve %s", t.path)
	}
	return &ftpBody{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves the URL into path.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return saveFile(body, path)
}
