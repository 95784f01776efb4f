package domain

import (
	"sort"
	"strings"
)

type ActorID string

// Actor is the authenticated identity bound to a connection. Roles and
// permissions are normalized once at authentication and immutable for the
// connection lifetime.
type Actor struct {
	ID          ActorID
	Roles       StringSet
	Permissions StringSet
}

// NewActor builds an actor with normalized role and permission sets.
func NewActor(id ActorID, roles, permissions []string) *Actor {
	return &Actor{
		ID:          id,
		Roles:       NewStringSet(roles...),
		Permissions: NewStringSet(permissions...),
	}
}

// StringSet is a normalized (lowercased, deduplicated) string set used for
// role and permission algebra.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values, casefolding and dropping
// empty entries.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the normalized form of v.
func (s StringSet) Contains(v string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Intersects reports whether the two sets share at least one member.
func (s StringSet) Intersects(other StringSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for v := range small {
		if _, ok := large[v]; ok {
			return true
		}
	}
	return false
}

// Len returns the set cardinality.
func (s StringSet) Len() int {
	return len(s)
}

// Values returns the members in sorted order.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
