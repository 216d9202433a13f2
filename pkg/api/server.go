// Package api serves decoded queue messages over HTTP for UI and tooling
// consumers. The surface is read-only: queue info, paged messages, search,
// and stats, plus Prometheus metrics.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hsterling/chronoview/pkg/service"
)

// ServerConfig holds the listen address for the queue API.
type ServerConfig struct {
	Bind string
	Port int
}

// NewRouter builds the chi router with all routes and middleware attached.
func NewRouter(svc *service.Service, metrics *Metrics) http.Handler {
	server := NewServer(svc, metrics)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", metrics.InstrumentHandler("GET", "/health", server.handleHealth))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue", metrics.InstrumentHandler("GET", "/api/v1/queue", server.handleQueueInfo))
		r.Get("/messages", metrics.InstrumentHandler("GET", "/api/v1/messages", server.handleMessages))
		r.Get("/messages/{index}", metrics.InstrumentHandler("GET", "/api/v1/messages/{index}", server.handleMessage))
		r.Get("/search", metrics.InstrumentHandler("GET", "/api/v1/search", server.handleSearch))
		r.Get("/stats", metrics.InstrumentHandler("GET", "/api/v1/stats", server.handleStats))
	})

	return r
}

// StartServer starts the HTTP server over a loaded service and blocks.
func StartServer(svc *service.Service, config ServerConfig) error {
	metrics := NewMetrics(prometheus.DefaultRegisterer)
	router := NewRouter(svc, metrics)

	addr := fmt.Sprintf("%s:%d", config.Bind, config.Port)
	return http.ListenAndServe(addr, router)
}
