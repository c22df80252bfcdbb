package session

import "strings"

// KeyPrefix namespaces every key written by the store.
const KeyPrefix = "jb-session"

// Backend is a synchronous string key-value store. Missing keys are not errors.
type Backend interface {
	GetItem(key string) (value string, found bool, err error)
	SetItem(key string, value string) error
	RemoveItem(key string) error
	Keys() ([]string, error)
}

type storageKey struct {
	scope Scope
	name  string
}

func (key storageKey) String() string {
	return KeyPrefix + "-" + string(key.scope) + "-" + key.name
}

// parseStorageKey splits a backend key into its scope and caller key. Keys outside the
// store namespace or with an unknown scope are rejected.
func parseStorageKey(raw string) (storageKey, bool) {
	remainder, hasPrefix := strings.CutPrefix(raw, KeyPrefix+"-")
	if !hasPrefix {
		return storageKey{}, false
	}
	scopeName, name, found := strings.Cut(remainder, "-")
	if !found || name == "" {
		return storageKey{}, false
	}
	scope := Scope(scopeName)
	if !scope.Valid() {
		return storageKey{}, false
	}
	return storageKey{scope: scope, name: name}, true
}
