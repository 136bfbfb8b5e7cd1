package permissions

import (
	"encoding/json"
	"sort"
	"strings"
)

// Set is an unordered collection of action tokens granted for a scope.
// It serializes as a sorted JSON array so snapshots are stable.
type Set map[string]struct{}

// NewSet builds a Set from the given actions, ignoring blanks.
func NewSet(actions ...string) Set {
	s := make(Set, len(actions))
	for _, action := range actions {
		action = strings.TrimSpace(action)
		if action == "" {
			continue
		}
		s[action] = struct{}{}
	}
	return s
}

// Has reports whether action is in the set.
func (s Set) Has(action string) bool {
	_, ok := s[action]
	return ok
}

// Contains reports whether s is a superset of other.
func (s Set) Contains(other Set) bool {
	for action := range other {
		if !s.Has(action) {
			return false
		}
	}
	return true
}

// Union returns a new set with the actions of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for action := range s {
		out[action] = struct{}{}
	}
	for action := range other {
		out[action] = struct{}{}
	}
	return out
}

// Clone returns a copy of the set. A nil set clones to an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for action := range s {
		out[action] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same actions.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.Contains(other)
}

// Slice returns the actions sorted alphabetically.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for action := range s {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var actions []string
	if err := json.Unmarshal(data, &actions); err != nil {
		return err
	}
	*s = NewSet(actions...)
	return nil
}
