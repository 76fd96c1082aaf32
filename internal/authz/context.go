package authz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrResolution indicates the role store could not be consulted. It is
// deliberately distinct from a negative permission check so callers can
// answer 5xx instead of a misleading 403.
var ErrResolution = errors.New("authz: permission resolution failed")

// Rank orders role precedence classes. Lower ranks win; a user's precedence
// is the minimum rank over all held roles.
type Rank int

const (
	RankAdministrative Rank = iota
	RankFinancial
	RankOperational
	RankBasic
	// RankUnranked applies to users with no roles and to roles absent from
	// the rank table.
	RankUnranked
)

// roleRanks is the explicit role precedence table. Precedence is data, not
// an artifact of evaluation order; unknown roles fall to RankUnranked.
var roleRanks = map[string]Rank{
	"ADMIN":             RankAdministrative,
	"COORDINATOR":       RankAdministrative,
	"FINANCIAL_ANALYST": RankFinancial,
	"CHEF":              RankOperational,
	"NUTRITIONIST":      RankOperational,
	"VOLUNTEER":         RankBasic,
}

// RankForRoles returns the minimum rank over the given role names.
func RankForRoles(roles []string) Rank {
	rank := RankUnranked
	for _, name := range roles {
		r, ok := roleRanks[name]
		if !ok {
			continue
		}
		if r < rank {
			rank = r
		}
	}
	return rank
}

// RoleGrant is a role as supplied by the role store: a name and the raw
// permission strings attached to it.
type RoleGrant struct {
	Name        string
	Permissions []string
}

// RoleSource supplies role data. The production implementation is the
// postgres-backed roles service; tests inject in-memory fakes.
type RoleSource interface {
	// RolesForUser returns every role held by the user. An unknown user
	// yields an empty slice, not an error.
	RolesForUser(ctx context.Context, userID int64) ([]RoleGrant, error)
	// AllRoles returns every role known to the store.
	AllRoles(ctx context.Context) ([]RoleGrant, error)
}

// Context is the resolved, read-only permission snapshot for one user at one
// point in time. It is never persisted and must be considered stale the
// moment any role assignment changes.
type Context struct {
	UserID      int64
	Roles       []string
	Permissions Set
	Precedence  Rank
	BuiltAt     time.Time
}

// Has reports whether the context grants the required key. Absence of a
// grant is false, never an error; only a malformed key errors.
func (c *Context) Has(key string) (bool, error) {
	k, err := ParseKey(key)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	return c.Permissions.Has(k), nil
}

// Builder resolves permission contexts from an injected role source.
type Builder struct {
	source RoleSource
	group  singleflight.Group
}

// NewBuilder constructs a Builder around the given role source.
func NewBuilder(source RoleSource) *Builder {
	return &Builder{source: source}
}

// BuildContext loads the user's roles and unions their permissions into a
// single set. A user with no roles (or an unknown user) yields an empty
// context and no error; only an unreachable role store errors, wrapped in
// ErrResolution. Concurrent builds for the same user share one store read.
func (b *Builder) BuildContext(ctx context.Context, userID int64) (*Context, error) {
	v, err, _ := b.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		grants, err := b.source.RolesForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResolution, err)
		}

		roles := make([]string, 0, len(grants))
		perms := NewSet()
		for _, grant := range grants {
			roles = append(roles, grant.Name)
			perms = perms.Union(NewSet(grant.Permissions...))
		}

		return &Context{
			UserID:      userID,
			Roles:       roles,
			Permissions: perms,
			Precedence:  RankForRoles(roles),
			BuiltAt:     time.Now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}
