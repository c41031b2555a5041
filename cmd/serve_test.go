//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "odense_hex.geojson"), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aarhus_hex.geojson"), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	srv := httptest.NewServer(newRouter(dir))
	t.Cleanup(srv.Close)
	return srv, dir
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_ListLayers(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"aarhus", "odense"}, body["layers"])
}

func TestServe_Layer(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/layers/Odense")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	var fc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc["type"])
}

func TestServe_LayerNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/layers/ghost", "/layers/..%2F..%2Fetc%2Fpasswd", "/cities"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestServe_CORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/layers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestListLayers_MissingDir(t *testing.T) {
	layers, err := listLayers(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestRunServer_DrainsInFlightOnCancel(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("done"))
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		stopped <- runServer(ctx, &http.Server{Handler: handler, ReadHeaderTimeout: time.Second}, ln, 5*time.Second)
	}()

	type reply struct {
		body string
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			replies <- reply{err: err}
			return
		}
		defer resp.Body.Close() //nolint:errcheck
		b, err := io.ReadAll(resp.Body)
		replies <- reply{body: string(b), err: err}
	}()

	<-started
	cancel()

	r := <-replies
	require.NoError(t, r.err)
	assert.Equal(t, "done", r.body)
	require.NoError(t, <-stopped)
}

func TestRunServer_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = runServer(context.Background(), &http.Server{ReadHeaderTimeout: time.Second}, ln, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
