package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mouldworks/mouldworks/internal/analytics"
	audithttp "github.com/mouldworks/mouldworks/internal/audit/http"
	"github.com/mouldworks/mouldworks/internal/auth"
	"github.com/mouldworks/mouldworks/internal/costing"
	"github.com/mouldworks/mouldworks/internal/dataio"
	"github.com/mouldworks/mouldworks/internal/delivery"
	"github.com/mouldworks/mouldworks/internal/inventory"
	"github.com/mouldworks/mouldworks/internal/masterdata"
	"github.com/mouldworks/mouldworks/internal/observability"
	"github.com/mouldworks/mouldworks/internal/oee"
	"github.com/mouldworks/mouldworks/internal/production"
	"github.com/mouldworks/mouldworks/internal/quality"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/roles"
	"github.com/mouldworks/mouldworks/internal/sales"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/internal/users"
	"github.com/mouldworks/mouldworks/internal/view"
	"github.com/mouldworks/mouldworks/jobs"
	"github.com/mouldworks/mouldworks/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audithttp.Handler

	InventoryHandler  *inventory.Handler
	MasterDataHandler *masterdata.Handler
	ProductionHandler *production.Handler
	SalesHandler      *sales.Handler
	DeliveryHandler   *delivery.Handler
	CostingHandler    *costing.Handler
	OEEHandler        *oee.Handler
	QualityHandler    *quality.Handler
	DataIOHandler     *dataio.Handler
	AnalyticsHandler  *analytics.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Mouldworks defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Landing page for unauthenticated users
	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:     "Mouldworks",
			CSRFToken: csrfToken,
			Flash:     flash,
		}
		if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}

		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		flash := sess.PopFlash()
		data := view.TemplateData{
			Title:     "Mouldworks",
			CSRFToken: csrfToken,
			Flash:     flash,
			Data: map[string]any{
				"AppEnv": params.Config.AppEnv,
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/api", params.UsersHandler.MountAPIRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}

	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.ProductionHandler != nil {
		r.Route("/production", params.ProductionHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.DeliveryHandler != nil {
		r.Route("/deliveries", params.DeliveryHandler.MountRoutes)
	}
	if params.CostingHandler != nil {
		r.Route("/costing", params.CostingHandler.MountRoutes)
	}
	if params.OEEHandler != nil {
		r.Route("/oee", params.OEEHandler.MountRoutes)
	}
	if params.QualityHandler != nil {
		r.Route("/quality", params.QualityHandler.MountRoutes)
	}
	if params.DataIOHandler != nil {
		r.Route("/dataio", params.DataIOHandler.MountRoutes)
	}
	if params.AnalyticsHandler != nil {
		r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static files are served without rate limiting (no session/CSRF needed)
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep CSS and JS for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
