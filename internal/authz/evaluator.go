package authz

// HasPermission answers a point-in-time permission check against an already
// built context. This is the server-authoritative call shape; the client-safe
// shape is HasPermissionSync. Both delegate to Set.Has so the matching
// semantics cannot diverge.
func HasPermission(pctx *Context, key string) (bool, error) {
	return pctx.Has(key)
}

// HasPermissionSync answers the same check for a pre-resolved role name list
// using the precompiled snapshot instead of live data. Role names absent from
// the snapshot contribute no permissions.
func HasPermissionSync(snap *Snapshot, roles []string, key string) (bool, error) {
	k, err := ParseKey(key)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}
	return snap.PermissionsFor(roles).Has(k), nil
}
