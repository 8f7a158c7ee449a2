// Package httpapi exposes the order form over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/drluca/shopstream/orderform/internal/processor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const maxFormBytes = 1 << 20

// OrderHandler processes an order form submission.
type OrderHandler interface {
	Handle(ctx context.Context, mode processor.Mode, form url.Values) (processor.Response, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
}

var modes = map[string]processor.Mode{
	"":        processor.PriceOnly,
	"price":   processor.PriceOnly,
	"preview": processor.Preview,
	"order":   processor.PlaceOrder,
}

// NewRouter wires the routes: POST /order, GET /health and GET /metrics.
func NewRouter(orders OrderHandler, db Pinger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/order", orderHandler(orders))
	r.Get("/health", healthHandler(db))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// orderHandler reads the form and the mode ("price", "preview" or "order").
// Configuration and storage faults answer 500 without details.
func orderHandler(orders OrderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
			return
		}
		mode, ok := modes[r.Form.Get("mode")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown mode"})
			return
		}

		resp, err := orders.Handle(r.Context(), mode, r.PostForm)
		if err != nil {
			logger := hlog.FromRequest(r)
			var event *zerolog.Event
			if errors.Is(err, models.ErrConfiguration) {
				event = logger.Error().Str("fault", "configuration")
			} else {
				event = logger.Error().Str("fault", "storage")
			}
			event.Err(err).Stringer("mode", mode).Msg("Order form request failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
