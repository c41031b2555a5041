package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indicators-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve written GeoJSON layers over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Output.Dir
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Handler:           newRouter(dir),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", port), zap.String("dir", dir))
		return runServer(ctx, srv, ln, shutdownGrace)
	},
}

// shutdownGrace bounds how long in-flight requests get after a signal.
const shutdownGrace = 15 * time.Second

// runServer serves on ln until ctx is done, then drains in-flight requests
// for up to grace before returning.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server", zap.Duration("grace", grace))
	// ctx is already cancelled; draining needs its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("dir", "", "directory of written GeoJSON layers (default output.dir)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter exposes the layers written to dir:
//
//	GET /health
//	GET /layers            region slugs with a hex layer
//	GET /layers/{region}   one region's hex GeoJSON
//	GET /cities            city summaries
func newRouter(dir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/layers", func(w http.ResponseWriter, _ *http.Request) {
		layers, err := listLayers(dir)
		if err != nil {
			zap.L().Error("serve: list layers", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot list layers"})
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"layers": layers})
	})

	r.Get("/layers/{region}", func(w http.ResponseWriter, req *http.Request) {
		serveGeoJSON(w, req, filepath.Join(dir, pipeline.HexFileName(chi.URLParam(req, "region"))))
	})

	r.Get("/cities", func(w http.ResponseWriter, req *http.Request) {
		serveGeoJSON(w, req, filepath.Join(dir, pipeline.CitiesFile))
	})

	return r
}

// listLayers returns the region slugs that have a hex layer in dir.
func listLayers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, eris.Wrapf(err, "serve: read %s", dir)
	}
	layers := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pipeline.HexFileSuffix) {
			continue
		}
		layers = append(layers, strings.TrimSuffix(e.Name(), pipeline.HexFileSuffix))
	}
	sort.Strings(layers)
	return layers, nil
}

func serveGeoJSON(w http.ResponseWriter, req *http.Request, path string) {
	if _, err := os.Stat(path); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "layer not found"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	http.ServeFile(w, req, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
