package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/internal/observability"
	"github.com/Alias1177/GlucoPredictor/internal/pipeline"
)

// Options configures the router
type Options struct {
	// FallbackModel is tried when a manual prediction's model is unavailable
	FallbackModel string
	Metrics       *observability.Collector
	Now           func() time.Time
}

// NewRouter mounts every route on a chi router
func NewRouter(svc *pipeline.Service, opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Handler{
		svc:           svc,
		fallbackModel: opts.FallbackModel,
		now:           opts.Now,
		logger:        log.With().Str("component", "httpapi").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h))
	r.Use(instrument(opts.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/glucose", h.logGlucose)
		r.Post("/meals", h.logMeal)
		r.Post("/activities", h.logActivity)
		r.Post("/medications/log", h.logMedication)

		r.Route("/wellness", func(r chi.Router) {
			r.Post("/mood", h.logMood)
			r.Post("/lifestyle", h.logLifestyle)
		})

		r.Route("/predict", func(r chi.Router) {
			r.Post("/", h.predict)
			r.Get("/latest", h.latestForecast)
			r.Get("/history", h.forecastHistory)
			r.Get("/trends", h.weeklyTrend)
			r.Get("/{id}", h.getForecast)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Post("/", h.createNotification)
			r.Get("/unread-count", h.unreadCount)
			r.Post("/read-all", h.markAllRead)
			r.Put("/{id}/read", h.markRead)
			r.Delete("/{id}", h.deleteNotification)
		})
	})

	return r
}

func requestLogger(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			h.logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("Request served")
		})
	}
}

// instrument records request counts and latency by route pattern
func instrument(c *observability.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
		})
	}
}
