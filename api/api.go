// Package api exposes the dispatcher over an HTTP management surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/subscription"
)

// Options configures the HTTP surface.
type Options struct {
	// ServiceName is used as the logger name. Defaults to "dispatch-api".
	ServiceName string

	// RequestTimeout bounds each request. Defaults to 30s.
	RequestTimeout time.Duration

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
}

// Handlers builds the chi router for the dispatcher's management API.
func Handlers(d *dispatch.Dispatcher, opts Options) *chi.Mux {
	if opts.ServiceName == "" {
		opts.ServiceName = "dispatch-api"
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	logger := httplog.NewLogger(opts.ServiceName, httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store().Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/event-types", func(r chi.Router) {
			r.Post("/", registerEventType(d))
			r.Get("/", listEventTypes(d))
			r.Get("/{name}", getEventType(d))
			r.Delete("/{name}", deleteEventType(d))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", createSubscription(d))
			r.Get("/", listSubscriptions(d))
			r.Get("/{id}", getSubscription(d))
			r.Put("/{id}", updateSubscription(d))
			r.Delete("/{id}", deleteSubscription(d))
			r.Post("/{id}/rotate-secret", rotateSecret(d))
			r.Post("/{id}/test", testDelivery(d))
			r.Get("/{id}/attempts", recentAttempts(d))
			r.Get("/{id}/deliveries", listDeliveries(d))
		})

		r.Post("/events", triggerEvent(d))

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", listDLQ(d))
			r.Post("/replay", replayDLQBulk(d))
			r.Post("/{id}/replay", replayDLQEntry(d))
			r.Delete("/{id}", purgeDLQEntry(d))
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validationErr *subscription.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, dispatch.ErrSubscriptionNotFound),
		errors.Is(err, dispatch.ErrEventNotFound),
		errors.Is(err, dispatch.ErrDeliveryNotFound),
		errors.Is(err, dispatch.ErrDLQNotFound),
		errors.Is(err, dispatch.ErrEventTypeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrEventTypeDeprecated),
		errors.Is(err, dispatch.ErrPayloadValidationFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dlq.ErrAlreadyReplayed):
		status = http.StatusConflict
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
