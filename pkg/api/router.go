// Package api exposes lookups over HTTP.
//
// Middleware stack: RequestID, request logging, Recoverer, CORS.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/illmade-knight/go-dexcache/pkg/resolver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AliveMessage is the body of the liveness probe.
const AliveMessage = "I'm alive"

// Lookuper produces the merged response for a query.
type Lookuper interface {
	Lookup(ctx context.Context, query string) (*dex.Response, error)
}

// NewRouter assembles the chi router. gatherer backs /metrics; nil uses the
// default Prometheus registry.
func NewRouter(lookup Lookuper, gatherer prometheus.Gatherer, logger zerolog.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{lookup: lookup, logger: logger.With().Str("component", "API").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/alive", h.alive)
	r.Get("/alive/", h.alive)
	r.With(jsonContentType).Get("/info/{name}", h.info)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type handlers struct {
	lookup Lookuper
	logger zerolog.Logger
}

func (h *handlers) alive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AliveMessage)
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, err := h.lookup.Lookup(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, dex.ErrNotFound):
			writeError(w, http.StatusNotFound, "No close match found for the given name.")
		case errors.Is(err, resolver.ErrNamesUnavailable):
			writeError(w, http.StatusInternalServerError, "Failed to load Pokemon names")
		default:
			writeError(w, http.StatusInternalServerError, "lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// corsMiddleware allows any origin and answers preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("Handled request.")
		})
	}
}
