package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/restobase/restobase/internal/ingredient"
	"github.com/restobase/restobase/internal/observability"
	"github.com/restobase/restobase/internal/purchasing"
	"github.com/restobase/restobase/internal/recipe"
	"github.com/restobase/restobase/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	IngredientHandler *ingredient.Handler
	PurchasingHandler *purchasing.Handler
	RecipeHandler     *recipe.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Middleware        MiddlewareConfig
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.Middleware) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.IngredientHandler != nil {
		params.IngredientHandler.MountRoutes(r)
	}
	if params.PurchasingHandler != nil {
		params.PurchasingHandler.MountRoutes(r)
	}
	if params.RecipeHandler != nil {
		params.RecipeHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
