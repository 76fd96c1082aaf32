package authz

import "fmt"

// Permission catalog for the meal program platform. Every grantable
// capability is listed here; the registry derived from this catalog is the
// closed set of keys accepted in route tables and guard declarations.
const (
	PermUsersView   = "users.view"
	PermUsersCreate = "users.create"
	PermUsersEdit   = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermSchoolsView = "schools.view"
	PermSchoolsEdit = "schools.edit"

	PermMenusView = "menus.view"
	PermMenusEdit = "menus.edit"

	PermProductionView   = "production.view"
	PermProductionManage = "production.manage"

	PermDistributionView   = "distribution.view"
	PermDistributionManage = "distribution.manage"

	PermInventoryView   = "inventory.view"
	PermInventoryAdjust = "inventory.adjust"

	PermFinanceView    = "finance.view"
	PermFinanceReports = "finance.reports"

	PermReportsView = "reports.view"
)

// Catalog lists every permission key known to the platform.
func Catalog() []string {
	return []string{
		PermUsersView,
		PermUsersCreate,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermSchoolsView,
		PermSchoolsEdit,
		PermMenusView,
		PermMenusEdit,
		PermProductionView,
		PermProductionManage,
		PermDistributionView,
		PermDistributionManage,
		PermInventoryView,
		PermInventoryAdjust,
		PermFinanceView,
		PermFinanceReports,
		PermReportsView,
	}
}

// Registry is the closed set of permission keys and domains accepted by the
// engine. Guard declarations and route rules are validated against it so a
// typo'd key fails at wiring time instead of silently denying forever.
type Registry struct {
	keys    map[string]struct{}
	domains map[string]struct{}
}

// NewRegistry builds a registry from canonical key strings.
func NewRegistry(keys ...string) (*Registry, error) {
	r := &Registry{
		keys:    make(map[string]struct{}, len(keys)),
		domains: make(map[string]struct{}),
	}
	for _, raw := range keys {
		k, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}
		if k.Wildcard() {
			return nil, fmt.Errorf("authz: registry entries must be concrete keys, got %q", raw)
		}
		r.keys[k.String()] = struct{}{}
		r.domains[k.Domain] = struct{}{}
	}
	return r, nil
}

// DefaultRegistry returns the registry built from the platform catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Known reports whether the key is part of the registry. Wildcard grants are
// accepted when their domain is known.
func (r *Registry) Known(k Key) bool {
	if r == nil {
		return true
	}
	if k.Wildcard() {
		_, ok := r.domains[k.Domain]
		return ok
	}
	_, ok := r.keys[k.String()]
	return ok
}

// MustKey parses a key and asserts registry membership. Intended for static
// wiring (route tables, guard declarations); panics on configuration errors.
// A required key names one concrete capability, so wildcards are rejected
// here even though Known accepts them for grant validation.
func (r *Registry) MustKey(raw string) Key {
	k, err := ParseKey(raw)
	if err != nil {
		panic(fmt.Sprintf("authz: %v", err))
	}
	if k.Wildcard() {
		panic(fmt.Sprintf("authz: wildcard key %q cannot be required", raw))
	}
	if !r.Known(k) {
		panic(fmt.Sprintf("authz: key %q not in registry", raw))
	}
	return k
}
