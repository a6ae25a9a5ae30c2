package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/healthreport/internal/api/middleware"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// AllowedOrigins enables CORS for the presentation layer. Empty disables it.
	AllowedOrigins []string

	HealthHandler http.HandlerFunc

	ListAssessments http.HandlerFunc

	CreatePipeline   http.HandlerFunc
	ListPipelines    http.HandlerFunc
	GetPipeline      http.HandlerFunc
	DeletePipeline   http.HandlerFunc
	StartOver        http.HandlerFunc
	ToggleSelection  http.HandlerFunc
	ReplaceSelection http.HandlerFunc
	RunTriage        http.HandlerFunc
	AcceptTriage     http.HandlerFunc
	Generate         http.HandlerFunc
	RetryDispatch    http.HandlerFunc

	ListAnalyses http.HandlerFunc
	GetAnalysis  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/assessments", orNotImplemented(deps.ListAssessments))

		r.Route("/api/v1/pipelines", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreatePipeline))
			r.Get("/", orNotImplemented(deps.ListPipelines))

			r.Route("/{pipelineID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetPipeline))
				r.Delete("/", orNotImplemented(deps.DeletePipeline))
				r.Post("/start-over", orNotImplemented(deps.StartOver))
				r.Post("/selection/toggle", orNotImplemented(deps.ToggleSelection))
				r.Put("/selection", orNotImplemented(deps.ReplaceSelection))
				r.Post("/triage", orNotImplemented(deps.RunTriage))
				r.Post("/triage/accept", orNotImplemented(deps.AcceptTriage))
				r.Post("/generate", orNotImplemented(deps.Generate))
				r.Post("/generate/retry", orNotImplemented(deps.RetryDispatch))
			})
		})

		r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalyses))
		r.Get("/api/v1/analyses/{analysisID}", orNotImplemented(deps.GetAnalysis))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
