package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/genway/genway/internal/config"
	"github.com/genway/genway/internal/dispatch"
	"github.com/genway/genway/internal/observability"
	"github.com/genway/genway/internal/registry"
	"github.com/genway/genway/internal/workflow"
	"github.com/genway/genway/model"
)

// Generator dispatches one generation request. Satisfied by
// dispatch.Dispatcher.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error)
}

// WorkflowEngine runs workflow definitions. Satisfied by workflow.Engine.
type WorkflowEngine interface {
	Start(ctx context.Context, def model.WorkflowDefinition) (model.WorkflowRun, error)
	Cancel(ctx context.Context, userID, runID string) error
	Get(ctx context.Context, userID, runID string) (model.WorkflowRun, error)
	List(ctx context.Context, userID string, filters workflow.RunFilters) ([]model.WorkflowRun, error)
}

// Dependencies carries everything the router needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Authenticator *JWTAuthenticator
	Registry      *registry.Registry
	Generator     Generator
	Results       dispatch.ResultStore
	Workflows     WorkflowEngine
	Readiness     observability.ReadinessChecks
}

// NewRouter builds the full HTTP routing tree.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CorrelationID)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}
	r.Use(SecurityHeaders)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

	// Unauthenticated operational endpoints.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	h := &handlers{deps: deps}

	r.Group(func(r chi.Router) {
		r.Use(deps.Authenticator.Middleware)
		r.Use(BuildRequestContext)
		r.Use(RequestLogging(deps.Logger))

		r.Route("/v1", func(r chi.Router) {
			r.Post("/generate", h.handleGenerate)
			r.Get("/generations", h.handleListGenerations)
			r.Get("/generations/{resultID}", h.handleGetGeneration)

			r.Get("/providers", h.handleListProviders)

			r.Route("/workflows/runs", func(r chi.Router) {
				r.Post("/", h.handleStartRun)
				r.Get("/", h.handleListRuns)
				r.Get("/{runID}", h.handleGetRun)
				r.Post("/{runID}/cancel", h.handleCancelRun)
			})

			r.Route("/admin/providers", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", h.handleAdminListProviders)
				r.Put("/", h.handleAdminUpsertProvider)
				r.Post("/import-curl", h.handleAdminImportCurl)
				r.Delete("/{kind}/{name}", h.handleAdminDeleteProvider)
			})
		})
	})

	return r
}

type handlers struct {
	deps Dependencies
}
