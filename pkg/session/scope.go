// Package session provides a scoped, expiring key-value store over a persistent
// synchronous backend.
package session

import (
	"fmt"
	"strings"
)

// Scope namespaces stored records.
type Scope string

const (
	// ScopeUser holds user bound data; it is cleared on Logout.
	ScopeUser Scope = "user"
	// ScopeLocal holds data that survives Logout.
	ScopeLocal Scope = "local"
)

// Scopes returns the recognized scopes ordered by lookup priority.
func Scopes() []Scope {
	return []Scope{ScopeUser, ScopeLocal}
}

// Priority reports the lookup rank of the scope; lower wins. Unknown scopes return -1.
func (scope Scope) Priority() int {
	switch scope {
	case ScopeUser:
		return 0
	case ScopeLocal:
		return 1
	default:
		return -1
	}
}

// Valid reports whether the scope is recognized.
func (scope Scope) Valid() bool {
	return scope.Priority() >= 0
}

// ParseScope converts a scope name into a Scope.
func ParseScope(name string) (Scope, error) {
	scope := Scope(strings.TrimSpace(name))
	if !scope.Valid() {
		return "", invalidScopeError(scope)
	}
	return scope, nil
}

func invalidScopeError(scope Scope) error {
	quoted := make([]string, 0, len(Scopes()))
	for _, known := range Scopes() {
		quoted = append(quoted, fmt.Sprintf("'%s'", known))
	}
	return fmt.Errorf("scope '%s' is not valid, use scopes %s: %w", scope, strings.Join(quoted, " or "), ErrInvalidScope)
}

// resolveScopes returns the scopes a lookup should visit in priority order.
func resolveScopes(scopes []Scope) ([]Scope, error) {
	if len(scopes) == 0 {
		return Scopes(), nil
	}
	resolved := make([]Scope, 0, len(scopes))
	seen := make(map[Scope]struct{}, len(scopes))
	for _, scope := range scopes {
		if !scope.Valid() {
			return nil, invalidScopeError(scope)
		}
		if _, exists := seen[scope]; exists {
			continue
		}
		seen[scope] = struct{}{}
		resolved = append(resolved, scope)
	}
	return resolved, nil
}
