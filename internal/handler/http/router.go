package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mabgcm/turkiyedental2-sub001/internal/service"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/health"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/middleware"
)

// Services bundles the application services the API exposes.
type Services struct {
	Clinics    *service.ClinicService
	Reviews    *service.ReviewService
	Moderation *service.ModerationService
	Views      *service.ViewService
}

// RouterConfig holds the edge settings of the API.
type RouterConfig struct {
	ServiceName    string
	CORSOrigins    []string
	PprofCIDRs     []string
	PublicMaxAge   int
	TokenValidator middleware.TokenValidator
	// SubmitLimiter throttles review submissions per identity. Nil disables it.
	SubmitLimiter *middleware.KeyedLimiter
}

// NewRouter creates a chi router with all clinic review routes registered.
func NewRouter(svcs Services, cfg RouterConfig, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	clinicHandler := NewClinicHandler(svcs.Clinics, svcs.Views, svcs.Moderation, logger)
	reviewHandler := NewReviewHandler(svcs.Reviews, logger)
	moderationHandler := NewModerationHandler(svcs.Moderation, svcs.Reviews, svcs.Views, logger)

	// The global RequestLogger runs before Authenticate and cannot see the
	// caller. Running it again after Authenticate rebinds the context logger
	// with user_id.
	authenticated := func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.TokenValidator))
		r.Use(middleware.RequestLogger(logger))
	}

	r.Route("/api/v1/clinics", func(r chi.Router) {
		// Public pages
		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.PublicMaxAge))
			r.Use(chimw.Compress(5))

			r.Get("/", clinicHandler.ListClinics)
			r.Get("/{id}", clinicHandler.GetClinic)
			r.Get("/{id}/reviews", clinicHandler.ListClinicReviews)
		})

		r.Group(func(r chi.Router) {
			authenticated(r)

			r.With(submitLimit(cfg.SubmitLimiter, logger)).Post("/{id}/reviews", reviewHandler.SubmitReview)

			// Administrator checks happen in the services.
			r.Post("/", clinicHandler.CreateClinic)
			r.Patch("/{id}", clinicHandler.UpdateClinic)
			r.Delete("/{id}", clinicHandler.DeleteClinic)
			r.Post("/{id}/recompute", clinicHandler.RecomputeClinic)
		})
	})

	r.Route("/api/v1/reviews", func(r chi.Router) {
		authenticated(r)

		r.Post("/{id}/flag", reviewHandler.FlagReview)
	})

	r.Route("/api/v1/moderation", func(r chi.Router) {
		authenticated(r)

		r.Get("/queue", moderationHandler.Queue)
		r.Get("/reviews/{id}", moderationHandler.GetReview)
		r.Post("/reviews/{id}/approve", moderationHandler.Approve)
		r.Post("/reviews/{id}/reject", moderationHandler.Reject)
		r.Put("/reviews/{id}/status", moderationHandler.SetStatus)
		r.Put("/reviews/{id}/reply", moderationHandler.Reply)
	})

	return r
}

func submitLimit(l *middleware.KeyedLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(l, logger)
}
