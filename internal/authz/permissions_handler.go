package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealdesk/mealdesk/internal/platform/httpx"
)

// PermissionsHandler exposes the permission catalog and the landing route
// precedence table for administrators, so the deny/allow policy can be
// audited without reading code.
type PermissionsHandler struct {
	logger *slog.Logger
	guard  Guard
	router *Router
	holder *SnapshotHolder
}

// NewPermissionsHandler builds a PermissionsHandler. The holder may be nil
// when no snapshot has been published.
func NewPermissionsHandler(logger *slog.Logger, guard Guard, router *Router, holder *SnapshotHolder) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, guard: guard, router: router, holder: holder}
}

// MountRoutes registers permission inspection routes. /me and /check are
// self-scoped and only need an authenticated session; the catalog, route
// table and snapshot are admin surfaces behind permissions.view.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)
	r.Get("/check", h.checkPermission)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(PermPermissionsView))
		r.Get("/", h.listCatalog)
		r.Get("/routes", h.listRouteTable)
		r.Get("/snapshot", h.getSnapshot)
	})
}

type routeRuleResponse struct {
	Name  string `json:"name"`
	Route string `json:"route"`
}

type routeTableResponse struct {
	Rules   []routeRuleResponse `json:"rules"`
	Default string              `json:"default"`
}

type mePermissionsResponse struct {
	UserID      int64    `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Landing     string   `json:"landing"`
}

type checkResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// myPermissions returns the caller's resolved permission context plus the
// landing route the precedence table picks. Clients hydrate their local
// guards from this at login.
func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	pctx, err := h.guard.Builder.CachedContext(r.Context(), userID)
	if err != nil {
		h.logger.Error("resolve own permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mePermissionsResponse{
		UserID:      userID,
		Roles:       pctx.Roles,
		Permissions: pctx.Permissions.Strings(),
		Landing:     string(h.router.Table().Resolve(pctx.Permissions)),
	})
}

// checkPermission answers whether the caller holds one permission. A deny is
// data, not an error: the response is 200 with allowed=false.
func (h *PermissionsHandler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	raw := r.URL.Query().Get("permission")
	if _, err := ParseKey(raw); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Permission", "query parameter permission is not a valid key")
		return
	}
	pctx, err := h.guard.Builder.CachedContext(r.Context(), userID)
	if err != nil {
		h.logger.Error("resolve own permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	allowed, err := pctx.Has(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Permission", "query parameter permission is not a valid key")
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Permission: raw, Allowed: allowed})
}

func (h *PermissionsHandler) listCatalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": Catalog()})
}

func (h *PermissionsHandler) listRouteTable(w http.ResponseWriter, r *http.Request) {
	table := h.router.Table()
	rules := make([]routeRuleResponse, 0, len(table.Rules()))
	for _, rule := range table.Rules() {
		rules = append(rules, routeRuleResponse{Name: rule.Name, Route: string(rule.Route)})
	}
	httpx.JSON(w, http.StatusOK, routeTableResponse{
		Rules:   rules,
		Default: string(table.Fallback()),
	})
}

// getSnapshot serves the published role→permission artifact, the same one the
// sync evaluation path consumes. Clients hydrate their local guards from it.
func (h *PermissionsHandler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap *Snapshot
	if h.holder != nil {
		snap = h.holder.Current()
	}
	if snap == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no permission snapshot has been published")
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}
