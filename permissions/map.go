package permissions

import "strings"

// Map grants action sets per scope name. An absent scope means no access to
// that scope and an empty map means no privileged access at all.
type Map map[string]Set

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for scope, actions := range m {
		out[scope] = actions.Clone()
	}
	return out
}

// Merge returns a new map holding the scope by scope union of m and additions.
func (m Map) Merge(additions Map) Map {
	out := m.Clone()
	if out == nil {
		out = make(Map, len(additions))
	}
	for scope, actions := range additions {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if current, ok := out[scope]; ok {
			out[scope] = current.Union(actions)
			continue
		}
		out[scope] = actions.Clone()
	}
	return out
}

// Without returns a new map with scope removed entirely.
func (m Map) Without(scope string) Map {
	out := m.Clone()
	delete(out, scope)
	return out
}

// Scopes returns the granted scope names.
func (m Map) Scopes() []string {
	out := make([]string, 0, len(m))
	for scope := range m {
		out = append(out, scope)
	}
	return out
}

// Equal compares two maps treating action sets as sets.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for scope, actions := range m {
		theirs, ok := other[scope]
		if !ok || !actions.Equal(theirs) {
			return false
		}
	}
	return true
}

// FromLists converts a plain scope -> actions list mapping, as found in
// configuration files and JSON payloads, into a Map.
func FromLists(in map[string][]string) Map {
	if in == nil {
		return nil
	}
	out := make(Map, len(in))
	for scope, actions := range in {
		out[scope] = NewSet(actions...)
	}
	return out
}
