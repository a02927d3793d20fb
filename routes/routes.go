package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/release-engineering/greenwave-sub000/app"
	"github.com/release-engineering/greenwave-sub000/handlers"
	"github.com/release-engineering/greenwave-sub000/middleware"
	"github.com/release-engineering/greenwave-sub000/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if deps.Config != nil && len(deps.Config.Server.CORSOrigins) > 0 {
		origins = deps.Config.Server.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	info := handlers.NewInfoHandler(deps.Version, deps.Policies, deps.SubjectTypes, deps.Logger)
	health := handlers.NewHealthHandler(deps.Logger, healthChecks(deps)...)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", info.HandleAbout)
		r.Get("/about", info.HandleAbout)
		r.Get("/version", info.HandleAbout)
		r.Get("/policies", info.HandlePolicies)
		r.Get("/subject_types", info.HandleSubjectTypes)
		r.Get("/healthcheck", health.HandleHealth)
		r.Get("/readiness", health.HandleReadiness)

		if deps.Decisions != nil {
			r.Post("/decision", handlers.NewDecisionHandler(deps.Decisions, deps.Logger).HandleDecision)
		}

		// Webhooks fed by the ResultsDB and WaiverDB message bus bridge
		if deps.Listener != nil {
			l := handlers.NewListenerHandler(deps.Listener, deps.Logger)
			r.Route("/listener", func(r chi.Router) {
				if deps.AuthMiddleware != nil {
					r.Use(deps.AuthMiddleware.RequireAuth)
				}
				r.Post("/resultsdb", l.HandleResultsDB)
				r.Post("/waiverdb", l.HandleWaiverDB)
			})
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "")
	})

	return r
}

func healthChecks(deps *app.Dependencies) []handlers.HealthChecker {
	var checks []handlers.HealthChecker
	if deps.Repos != nil {
		checks = append(checks, deps.Repos.HealthCheck)
	}
	if deps.Cache != nil {
		checks = append(checks, deps.CacheHealthCheck)
	}
	return checks
}
