package authz

import "sort"

// Set is an immutable collection of granted permissions. Exact grants and
// domain wildcards are kept apart so membership tests stay O(1).
type Set struct {
	exact     map[string]struct{}
	wildcards map[string]struct{}
}

// NewSet builds a Set from raw permission strings. Duplicates collapse
// silently; grants that fail to parse confer nothing (fail-closed) and are
// dropped rather than reported, matching how stored data is treated.
func NewSet(perms ...string) Set {
	s := Set{
		exact:     make(map[string]struct{}),
		wildcards: make(map[string]struct{}),
	}
	for _, raw := range perms {
		k, err := ParseKey(raw)
		if err != nil {
			continue
		}
		if k.Wildcard() {
			s.wildcards[k.Domain] = struct{}{}
			continue
		}
		s.exact[k.String()] = struct{}{}
	}
	return s
}

// Has reports whether the required key is satisfied by the set, by exact
// match or by a domain wildcard grant.
func (s Set) Has(required Key) bool {
	if _, ok := s.exact[required.String()]; ok {
		return true
	}
	_, ok := s.wildcards[required.Domain]
	return ok
}

// Contains parses a raw required key and tests membership. A malformed key
// is the only error path; absence is false, never an error.
func (s Set) Contains(raw string) (bool, error) {
	k, err := ParseKey(raw)
	if err != nil {
		return false, err
	}
	return s.Has(k), nil
}

// Union returns a new set holding the grants of both sets.
func (s Set) Union(other Set) Set {
	merged := Set{
		exact:     make(map[string]struct{}, len(s.exact)+len(other.exact)),
		wildcards: make(map[string]struct{}, len(s.wildcards)+len(other.wildcards)),
	}
	for k := range s.exact {
		merged.exact[k] = struct{}{}
	}
	for k := range other.exact {
		merged.exact[k] = struct{}{}
	}
	for d := range s.wildcards {
		merged.wildcards[d] = struct{}{}
	}
	for d := range other.wildcards {
		merged.wildcards[d] = struct{}{}
	}
	return merged
}

// Len returns the number of distinct grants.
func (s Set) Len() int {
	return len(s.exact) + len(s.wildcards)
}

// Strings returns the canonical sorted grant list, wildcards included.
func (s Set) Strings() []string {
	out := make([]string, 0, s.Len())
	for k := range s.exact {
		out = append(out, k)
	}
	for d := range s.wildcards {
		out = append(out, d+"."+WildcardAction)
	}
	sort.Strings(out)
	return out
}
