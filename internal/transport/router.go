package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/flagconsole/internal/config"
	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/lookup"
	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/internal/session"
	"github.com/pitabwire/flagconsole/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Sessions           *session.Manager
	Pages              *page.Registry
	Lookups            *lookup.Provider
	Catalog            *i18n.Catalog
	Metrics            *observability.Metrics
	Readiness          observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	metricsPath := deps.Config.Observability.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Method(http.MethodGet, metricsPath, observability.Handler())

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if deps.Pages != nil {
			r.Get("/api/navigation", handleNavigation(deps.Pages, deps.Catalog))
		}
		if deps.Lookups != nil {
			r.Get("/api/lookups/{resource}", handleLookup(deps.Lookups))
		}
		if deps.Sessions != nil {
			routeSessions(r, deps.Sessions)
		}
	})

	return r
}

func routeSessions(r chi.Router, sessions *session.Manager) {
	r.Post("/api/sessions", handleCreateSession(sessions))
	r.Route("/api/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/", handleSession(viewSession(sessions)))
		r.Delete("/", handleDeleteSession(sessions))
		r.Post("/navigate", handleSession(navigateSession(sessions)))
		r.Post("/back", handleSession(backSession(sessions)))
		r.Post("/search", handleSession(searchSession(sessions)))
		r.Post("/page", handleSession(pageSession(sessions)))
		r.Post("/form/open", handleSession(openFormSession(sessions)))
		r.Post("/form/fields", handleSession(setFieldSession(sessions)))
		r.Post("/form/submit", handleSession(submitSession(sessions)))
		r.Post("/form/close", handleSession(closeFormSession(sessions)))
		r.Post("/actions", handleSession(requestActionSession(sessions)))
		r.Post("/actions/confirm", handleSession(confirmSession(sessions)))
		r.Post("/actions/cancel", handleSession(cancelSession(sessions)))
	})
}
