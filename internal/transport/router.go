package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/config"
	"github.com/formgrid/flowd/internal/definition"
	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/internal/workflow"
	"github.com/formgrid/flowd/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Engine      *workflow.Engine
	Definitions definition.Store
	Validator   *definition.Validator
	Access      model.AccessResolver
	Readiness   observability.ReadinessChecks

	// Authenticate overrides the JWT middleware; used by tests to inject
	// claims directly.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		jwks := NewJWKSClient(deps.Config.Identity.JWKSURL, deps.Config.Identity.JWKSCacheTTL, deps.Logger)
		auth = JWTAuthenticator(deps.Config.Identity, jwks)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildActor(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.Access, deps.Logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(observability.TracingMiddleware)
		r.Use(RequestLogging(deps.Logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		// Definition management.
		r.Get("/workflows", handleDefinitionList(deps.Definitions))
		r.Post("/workflows", handleDefinitionCreate(deps.Definitions, deps.Validator))

		// Instance routes sit under the static /workflows/instances prefix,
		// which chi matches ahead of the {workflowID} parameter.
		r.Route("/workflows/instances", func(r chi.Router) {
			r.Get("/my-tasks", handleMyTasks(deps.Engine))
			r.Get("/{instanceID}", handleInstanceGet(deps.Engine))
			r.Get("/{instanceID}/actions", handleInstanceActions(deps.Engine))
			r.Post("/{instanceID}/transitions/{transitionID}", handleTransitionExecute(deps.Engine))
			r.Post("/{instanceID}/comments", handleCommentAdd(deps.Engine))
		})

		r.Route("/workflows/{workflowID}", func(r chi.Router) {
			r.Get("/", handleDefinitionGet(deps.Definitions))
			r.Put("/", handleDefinitionUpdate(deps.Definitions, deps.Validator))
			r.Delete("/", handleDefinitionDelete(deps.Definitions))
			r.Post("/deactivate", handleDefinitionDeactivate(deps.Definitions))
			r.Post("/instances", handleInstanceCreate(deps.Engine))
			r.Get("/instances", handleInstanceList(deps.Engine))
		})
	})

	return r
}
