package authz

import "context"

// Route is a top-level landing area path.
type Route string

// Landing routes, highest precedence first.
const (
	RouteAdmin     Route = "/admin"
	RouteFinance   Route = "/finance"
	RouteDashboard Route = "/dashboard"
)

// Predicate is a boolean combination of permission checks evaluated against
// a resolved permission set.
type Predicate struct {
	anyOf []Key
}

// AnyOf builds a predicate satisfied when the set grants at least one of the
// keys. Keys are validated against the registry at construction; a typo is a
// wiring error, not a silent permanent denial.
func AnyOf(registry *Registry, keys ...string) Predicate {
	parsed := make([]Key, len(keys))
	for i, raw := range keys {
		parsed[i] = registry.MustKey(raw)
	}
	return Predicate{anyOf: parsed}
}

// Holds evaluates the predicate against the permission set.
func (p Predicate) Holds(set Set) bool {
	for _, k := range p.anyOf {
		if set.Has(k) {
			return true
		}
	}
	return false
}

// RouteRule maps a predicate to a landing route.
type RouteRule struct {
	Name  string
	When  Predicate
	Route Route
}

// RouteTable is an ordered first-match-wins precedence table with a
// mandatory default route. The order of rules is policy: administrative
// capability outranks financial capability outranks the basic dashboard.
type RouteTable struct {
	rules    []RouteRule
	fallback Route
}

// NewRouteTable constructs a table. The fallback applies when no rule
// matches, including the empty permission set.
func NewRouteTable(fallback Route, rules ...RouteRule) RouteTable {
	return RouteTable{rules: rules, fallback: fallback}
}

// Resolve walks the table top to bottom and returns the route of the first
// rule whose predicate holds, or the fallback.
func (t RouteTable) Resolve(set Set) Route {
	for _, rule := range t.rules {
		if rule.When.Holds(set) {
			return rule.Route
		}
	}
	return t.fallback
}

// Rules exposes the table contents for audit endpoints.
func (t RouteTable) Rules() []RouteRule {
	return t.rules
}

// Fallback returns the default route.
func (t RouteTable) Fallback() Route {
	return t.fallback
}

// DefaultRouteTable is the single source of the landing route policy. Both
// evaluation paths walk this exact table, so they can only disagree when the
// snapshot is stale, never because the policies were authored twice.
func DefaultRouteTable(registry *Registry) RouteTable {
	return NewRouteTable(
		RouteDashboard,
		RouteRule{
			Name:  "administrative",
			When:  AnyOf(registry, PermUsersCreate, PermUsersEdit, PermRolesEdit),
			Route: RouteAdmin,
		},
		RouteRule{
			Name:  "financial",
			When:  AnyOf(registry, PermFinanceView, PermFinanceReports),
			Route: RouteFinance,
		},
	)
}

// Router answers landing route questions through the two entry points the
// platform needs: an authoritative form that rebuilds the permission context
// from the role store, and a synchronous form for pre-resolved role lists.
type Router struct {
	builder *Builder
	table   RouteTable
}

// NewRouter constructs a Router.
func NewRouter(builder *Builder, table RouteTable) *Router {
	return &Router{builder: builder, table: table}
}

// ResolveRoute is the authoritative entry point: it rebuilds the user's
// permission context and walks the precedence table. Store failures
// propagate as ErrResolution.
func (r *Router) ResolveRoute(ctx context.Context, userID int64) (Route, error) {
	pctx, err := r.builder.CachedContext(ctx, userID)
	if err != nil {
		return "", err
	}
	return r.table.Resolve(pctx.Permissions), nil
}

// ResolveRouteSync is the client-safe entry point: it walks the same table
// against the precompiled snapshot, with no data access. A nil snapshot
// resolves every role list to the fallback route.
func (r *Router) ResolveRouteSync(snap *Snapshot, roles []string) Route {
	if snap == nil {
		return r.table.Fallback()
	}
	return r.table.Resolve(snap.PermissionsFor(roles))
}

// Table exposes the precedence table.
func (r *Router) Table() RouteTable {
	return r.table
}
