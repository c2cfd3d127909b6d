// Package server wires the Huma API, the vector store, the Lifecycle
// Controller, and the dataset registry into one http.Handler, grounded
// on the teacher's internal/server/server.go: humago adapter over a
// stdlib ServeMux, services assembled in New, a background updater
// goroutine started by the caller's hooks.OnStart.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeyemap/aeye/internal/api"
	"github.com/aeyemap/aeye/internal/dataset"
	"github.com/aeyemap/aeye/internal/facade"
	"github.com/aeyemap/aeye/internal/lifecycle"
	"github.com/aeyemap/aeye/internal/vectorstore"
)

// updaterInterval is how often the background Updater re-polls the
// store's collection list for datasets built since the server started.
const updaterInterval = 30 * time.Second

// Config holds the server's runtime configuration.
type Config struct {
	Host        string
	Port        string
	DataDir     string
	DatasetFile string
}

// Server is the aeye HTTP server: the Query Facade's HTTP surface plus a
// Prometheus /metrics endpoint.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	store    vectorstore.Store
	registry *lifecycle.Registry
	datasets *dataset.Registry
	updater  *lifecycle.Updater
}

// New creates a Server over store, with encoder as the (possibly nil)
// text-search collaborator.
func New(cfg Config, store vectorstore.Store, encoder facade.TextEncoder) (*Server, error) {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("aeye API", "0.1.0")
	humaConfig.Info.Description = "Semantic image-cluster tile pyramid, served over a vector store."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	humaAPI := humago.New(mux, humaConfig)

	datasets, err := dataset.Load(cfg.DatasetFile)
	if err != nil {
		datasets = dataset.New(nil)
	}

	registry := lifecycle.NewRegistry(store)
	lifecycle.Metrics(prometheus.DefaultRegisterer)

	f := facade.New(store, registry, datasets, encoder)
	handler := api.NewAPIHandler(&api.Services{Facade: f})
	handler.RegisterRoutes(humaAPI)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		store:    store,
		registry: registry,
		datasets: datasets,
		updater:  lifecycle.NewUpdater(store, registry, updaterInterval),
	}
	return s, nil
}

// ServeHTTP implements http.Handler. CORS is wide open
// (Access-Control-Allow-Origin: *) per spec.md §6.1, grounded on the
// teacher's handleTiles CORS headers, applied centrally here instead of
// per-route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Updater returns the background dataset-discovery loop; the caller runs
// it in its own goroutine, started from cmd/aeye's serve subcommand the
// way cmd/geo/main.go starts its hooks.OnStart closure.
func (s *Server) Updater() *lifecycle.Updater {
	return s.updater
}

// OpenAPI returns the generated OpenAPI document, for the CLI's spec
// subcommand.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}
