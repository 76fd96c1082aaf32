// Package authz implements permission resolution for the meal program
// platform: structured permission keys, per-user permission contexts built
// from the role store, a pure evaluation primitive, and the dashboard route
// precedence table. Guards in the HTTP layer consume this package; none of
// the resolution logic lives in handlers.
package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey reports a malformed permission key. It is an input
// validation failure, distinct from a negative permission check.
var ErrInvalidKey = errors.New("authz: invalid permission key")

// WildcardAction marks a grant covering every action in a domain.
// Only grants may carry it; a required key never does.
const WildcardAction = "*"

// keySeparators lists accepted separators. Historical data used both "."
// and ":" interchangeably; keys are normalized to "." on parse.
var keySeparators = []string{".", ":"}

// Key is a permission key split into its domain and action segments.
// The canonical rendering is "domain.action".
type Key struct {
	Domain string
	Action string
}

// ParseKey parses and normalizes a raw permission key. Both "." and ":"
// separators are accepted; input is lower-cased and trimmed. Empty input,
// a missing segment, or extra separators yield ErrInvalidKey.
func ParseKey(raw string) (Key, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	sep := ""
	for _, candidate := range keySeparators {
		if strings.Contains(normalized, candidate) {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return Key{}, fmt.Errorf("%w: %q has no separator", ErrInvalidKey, raw)
	}

	parts := strings.Split(normalized, sep)
	if len(parts) != 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, raw)
	}

	k := Key{Domain: parts[0], Action: parts[1]}
	if !validSegment(k.Domain) {
		return Key{}, fmt.Errorf("%w: bad domain in %q", ErrInvalidKey, raw)
	}
	if k.Action != WildcardAction && !validSegment(k.Action) {
		return Key{}, fmt.Errorf("%w: bad action in %q", ErrInvalidKey, raw)
	}
	return k, nil
}

// String renders the canonical form of the key.
func (k Key) String() string {
	return k.Domain + "." + k.Action
}

// Wildcard reports whether the key is a domain-level wildcard grant.
func (k Key) Wildcard() bool {
	return k.Action == WildcardAction
}

// Matches reports whether a required key is satisfied by this held grant:
// either both are identical, or the grant is a wildcard over the required
// key's domain. Action-level wildcards do not exist.
func (k Key) Matches(required Key) bool {
	if k.Wildcard() {
		return k.Domain == required.Domain
	}
	return k == required
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
