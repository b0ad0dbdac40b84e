// Package dashboard exposes the aggregated activity feeds and metrics over
// a JSON HTTP API.
package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vilaca/agent-dashboard/internal/domain"
	"github.com/vilaca/agent-dashboard/internal/telemetry"
)

const (
	defaultPerPage = 30
	maxPerPage     = 100
)

// ActivityService is the feed surface the handler depends on.
type ActivityService interface {
	FlatActivity(ctx context.Context, page, perPage int) []domain.ActivityEvent
	ThreadedActivity(ctx context.Context, perPage int) []domain.FeedItem
}

// MetricsService is the metrics surface the handler depends on.
type MetricsService interface {
	WindowedMetrics(ctx context.Context) domain.WindowedMetrics
	AggregateMetrics(ctx context.Context) domain.MetricsSnapshot
}

// Handler serves the dashboard API.
type Handler struct {
	activity ActivityService
	metrics  MetricsService
	logger   zerolog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(activity ActivityService, metrics MetricsService, logger zerolog.Logger) *Handler {
	return &Handler{
		activity: activity,
		metrics:  metrics,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Routes builds the router. The Prometheus endpoint sits outside /api so
// that scrape traffic never shows up in the API request metrics.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/activity", h.handleActivity)
		r.Get("/activity/threads", h.handleThreads)
		r.Get("/metrics", h.handleAggregate)
		r.Get("/metrics/windows", h.handleWindows)
	})
	return r
}

type activityResponse struct {
	Page    int                    `json:"page"`
	PerPage int                    `json:"per_page"`
	Events  []domain.ActivityEvent `json:"events"`
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 1, 100)
	perPage := queryInt(r, "per_page", defaultPerPage, 1, maxPerPage)

	events := h.activity.FlatActivity(r.Context(), page, perPage)
	h.writeJSON(w, http.StatusOK, activityResponse{
		Page:    page,
		PerPage: perPage,
		Events:  events,
	})
}

type threadsResponse struct {
	Items []domain.FeedItem `json:"items"`
}

func (h *Handler) handleThreads(w http.ResponseWriter, r *http.Request) {
	perPage := queryInt(r, "per_page", defaultPerPage, 1, maxPerPage)

	items := h.activity.ThreadedActivity(r.Context(), perPage)
	h.writeJSON(w, http.StatusOK, threadsResponse{Items: items})
}

func (h *Handler) handleWindows(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metrics.WindowedMetrics(r.Context()))
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metrics.AggregateMetrics(r.Context()))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encoding response failed")
	}
}

// requestLogger tags each request with an ID, logs its outcome and feeds
// the per-route request counter.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		telemetry.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		h.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// queryInt parses an integer query parameter, clamping to [min, max].
// Missing or malformed values fall back to def.
func queryInt(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
