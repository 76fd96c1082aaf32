package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mealdesk/mealdesk/internal/auth"
	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/observability"
	"github.com/mealdesk/mealdesk/internal/platform/httpx"
	"github.com/mealdesk/mealdesk/internal/roles"
	"github.com/mealdesk/mealdesk/internal/shared"
	"github.com/mealdesk/mealdesk/internal/users"
	"github.com/mealdesk/mealdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	Guard              authz.Guard
	AuthzRouter        *authz.Router
	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *authz.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with MealDesk defaults.
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

	// Landing dispatch: an authenticated user is redirected to the area the
	// precedence table picks; anonymous users go to login.
	r.Get("/", params.Guard.LandingRedirect(params.AuthzRouter))

	r.Get("/denied", func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you do not have access to this area")
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/roles", params.RolesHandler.MountRoutes)
	r.Route("/users", params.UsersHandler.MountRoutes)
	r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	// Landing areas. Content is owned by the respective feature teams; the
	// page guards here only gate entry.
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.RedirectAny(authz.PermUsersCreate, authz.PermUsersEdit, authz.PermRolesEdit))
		r.Get(string(authz.RouteAdmin), areaHandler("admin"))
	})
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.RedirectAny(authz.PermFinanceView, authz.PermFinanceReports))
		r.Get(string(authz.RouteFinance), areaHandler("finance"))
	})
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.RedirectAuthenticated())
		r.Get(string(authz.RouteDashboard), areaHandler("dashboard"))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func areaHandler(area string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"area": area})
	}
}
