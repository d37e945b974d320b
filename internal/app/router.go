package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/essentia-erp/essentia-erp/internal/audit"
	"github.com/essentia-erp/essentia-erp/internal/auth"
	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/fragrances"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/materials"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/products"
	"github.com/essentia-erp/essentia-erp/internal/masterdata/suppliers"
	"github.com/essentia-erp/essentia-erp/internal/production"
	"github.com/essentia-erp/essentia-erp/internal/purchasing"
	"github.com/essentia-erp/essentia-erp/internal/rbac"
	"github.com/essentia-erp/essentia-erp/internal/shared"
	"github.com/essentia-erp/essentia-erp/internal/users"
	"github.com/essentia-erp/essentia-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	SuppliersHandler  *suppliers.Handler
	MaterialsHandler  *materials.Handler
	FragrancesHandler *fragrances.Handler
	ProductsHandler   *products.Handler
	InventoryHandler  *inventory.Handler
	PurchasingHandler *purchasing.Handler
	ProductionHandler *production.Handler
	UsersHandler      *users.Handler
	RBACHandler       *rbac.Handler
	AuditHandler      *audit.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Essentia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		r.Route("/materials", params.MaterialsHandler.MountRoutes)
		r.Route("/fragrances", params.FragrancesHandler.MountRoutes)
		r.Route("/products", params.ProductsHandler.MountRoutes)
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/purchase-orders", params.PurchasingHandler.MountRoutes)
		r.Route("/work-orders", params.ProductionHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		params.RBACHandler.MountRoutes(r)
		r.Route("/audit", params.AuditHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
