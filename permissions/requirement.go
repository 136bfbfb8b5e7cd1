// Package permissions models scope/action grants and the requirements
// evaluated against them.
//
// A Requirement is one of three shapes:
//   - Scope: a single scope name that must be granted.
//   - Scopes: a list of scope names that must all be granted.
//   - Actions: scope names mapped to the actions required in each scope. Every
//     scope must be granted and its action set must be a superset of the
//     required one.
//
// Check never panics. A nil Map satisfies no non-empty requirement.
package permissions

// Requirement is the closed set of permission requirement shapes.
type Requirement interface {
	satisfiedBy(granted Map) bool
}

// Scope requires a single scope to be present.
type Scope string

// Scopes requires every listed scope to be present.
type Scopes []string

// Actions requires every scope to be present with at least the listed actions.
type Actions map[string]Set

var (
	_ Requirement = Scope("")
	_ Requirement = Scopes(nil)
	_ Requirement = Actions(nil)
)

func (s Scope) satisfiedBy(granted Map) bool {
	if s == "" {
		return false
	}
	_, ok := granted[string(s)]
	return ok
}

func (s Scopes) satisfiedBy(granted Map) bool {
	for _, scope := range s {
		if !Scope(scope).satisfiedBy(granted) {
			return false
		}
	}
	return true
}

func (a Actions) satisfiedBy(granted Map) bool {
	for scope, required := range a {
		actions, ok := granted[scope]
		if !ok || !actions.Contains(required) {
			return false
		}
	}
	return true
}

// Require is shorthand for an Actions requirement on a single scope.
func Require(scope string, actions ...string) Actions {
	return Actions{scope: NewSet(actions...)}
}

// Check evaluates req against the granted map. A nil requirement is
// trivially satisfied.
func Check(granted Map, req Requirement) bool {
	if req == nil {
		return true
	}
	return req.satisfiedBy(granted)
}
