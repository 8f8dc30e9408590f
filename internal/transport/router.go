package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/inventory"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Service            *interaction.Service
	Registry           *definition.Registry
	Tracker            *inventory.Tracker
	Idempotency        command.IdempotencyStore
	IdempotencyTTL     time.Duration
	Hub                *Hub
	Metrics            *observability.Metrics
	Gatherer           prometheus.Gatherer
	Readiness          observability.ReadinessChecks
	Logger             *zap.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Readiness.Catalogs == nil && deps.Registry != nil {
		deps.Readiness.Catalogs = deps.Registry.Counts
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Gatherer != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler(deps.Gatherer))
	}

	authChain := func(r chi.Router) {
		if deps.Authenticate == nil {
			r.Use(TrustLocal)
		} else {
			r.Use(deps.Authenticate)
			r.Use(BuildRequestContext(deps.Config.Identity.RolesClaim))
		}
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
	}

	h := &handlers{
		service:     deps.Service,
		registry:    deps.Registry,
		tracker:     deps.Tracker,
		idempotency: deps.Idempotency,
		ttl:         deps.IdempotencyTTL,
		pageSize:    deps.Config.Search.PageSize,
		logger:      logger,
	}

	// The websocket upgrade needs the raw connection, so it skips the
	// middleware that wraps the response writer.
	if deps.Hub != nil {
		r.Group(func(r chi.Router) {
			authChain(r)
			r.Get("/v1/host/ws", deps.Hub.ServeHTTP)
		})
	}

	r.Group(func(r chi.Router) {
		authChain(r)
		r.Use(RequestLogging(logger))
		r.Use(deps.Metrics.MetricsMiddleware)
		r.Use(observability.TracingMiddleware)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

		r.Route("/v1/catalogs", func(r chi.Router) {
			r.Get("/", h.listCatalogs)
			r.Get("/search", h.searchCatalogs)
			r.With(RequireCapability(model.CapReload)).Post("/reload", h.reloadCatalogs)
			r.With(RequireCapability(model.CapList)).Get("/{namespace}/items", h.listItems)
			r.Get("/{namespace}/items/{itemId}", h.getItem)
		})

		r.Route("/v1/users/{userId}", func(r chi.Router) {
			r.Post("/session", h.joinSession)
			r.Delete("/session", h.endSession)
			r.Post("/interactions", h.interact)
			r.With(RequireCapability(model.CapGive)).Post("/grants", h.grant)
			r.Put("/held", h.updateHeld)
			r.Post("/drops", h.drop)
			r.Get("/cooldowns", h.cooldowns)
			r.Get("/inventory", h.userInventory)
		})

		r.Get("/v1/inventory", h.allInventory)
		r.With(RequireCapability(model.CapSave)).Post("/v1/inventory/save", h.saveInventory)
	})

	return r
}
