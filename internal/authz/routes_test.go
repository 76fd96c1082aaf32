package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(source RoleSource) *Router {
	registry := DefaultRegistry()
	return NewRouter(NewBuilder(source), DefaultRouteTable(registry))
}

func TestResolveRouteChefLandsOnDashboard(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)
	router := newTestRouter(source)

	route, err := router.ResolveRoute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RouteDashboard, route)
}

func TestResolveRouteAnalystLandsOnFinance(t *testing.T) {
	source := newStubSource()
	source.grant(1, analystRole)
	router := newTestRouter(source)

	route, err := router.ResolveRoute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RouteFinance, route)
}

func TestResolveRouteAdminOutranksFinance(t *testing.T) {
	// ADMIN holds finance.view too; the administrative rule sits higher in
	// the table and must win.
	source := newStubSource()
	source.grant(1, adminRole)
	router := newTestRouter(source)

	route, err := router.ResolveRoute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RouteAdmin, route)
}

func TestResolveRouteUnionBeforePrecedence(t *testing.T) {
	// VOLUNTEER alone would land on the dashboard; the union with
	// FINANCIAL_ANALYST qualifies the user for the finance area.
	source := newStubSource()
	source.grant(1, volunteerRole, analystRole)
	router := newTestRouter(source)

	route, err := router.ResolveRoute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RouteFinance, route)
}

func TestResolveRouteNoRolesFallsBack(t *testing.T) {
	router := newTestRouter(newStubSource())

	route, err := router.ResolveRoute(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, RouteDashboard, route)
}

func TestResolveRouteStoreFailurePropagates(t *testing.T) {
	source := newStubSource()
	source.userErr = errors.New("connection refused")
	router := newTestRouter(source)

	_, err := router.ResolveRoute(context.Background(), 1)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolveRouteSyncAgreesWithAuthoritativePath(t *testing.T) {
	source := newStubSource()
	source.grant(1, chefRole)
	source.grant(2, analystRole)
	source.grant(3, adminRole)
	source.grant(4, volunteerRole, analystRole)
	router := newTestRouter(source)

	snap, err := BuildSnapshot(context.Background(), source)
	require.NoError(t, err)

	users := map[int64][]string{
		1: {"CHEF"},
		2: {"FINANCIAL_ANALYST"},
		3: {"ADMIN"},
		4: {"VOLUNTEER", "FINANCIAL_ANALYST"},
	}
	for userID, roles := range users {
		live, err := router.ResolveRoute(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, live, router.ResolveRouteSync(snap, roles), "user %d", userID)
	}
}

func TestResolveRouteSyncNilSnapshotFallsBack(t *testing.T) {
	router := newTestRouter(newStubSource())
	assert.Equal(t, RouteDashboard, router.ResolveRouteSync(nil, []string{"ADMIN"}))
}

func TestRouteTableFirstMatchWins(t *testing.T) {
	registry := DefaultRegistry()
	table := NewRouteTable(
		RouteDashboard,
		RouteRule{Name: "a", When: AnyOf(registry, PermFinanceView), Route: RouteFinance},
		RouteRule{Name: "b", When: AnyOf(registry, PermFinanceView), Route: RouteAdmin},
	)
	assert.Equal(t, RouteFinance, table.Resolve(NewSet("finance.view")))
}

func TestAnyOfRejectsUnknownKeyAtWiringTime(t *testing.T) {
	registry := DefaultRegistry()
	assert.Panics(t, func() {
		AnyOf(registry, "finance.typo")
	})
}

func TestDefaultRouteTableOrder(t *testing.T) {
	table := DefaultRouteTable(DefaultRegistry())
	rules := table.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "administrative", rules[0].Name)
	assert.Equal(t, "financial", rules[1].Name)
	assert.Equal(t, RouteDashboard, table.Fallback())
}
