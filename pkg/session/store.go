package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Store.
type Config struct {
	Backend Backend
	Logger  *zap.Logger
	Clock   Clock
}

// Store is a scope-aware, expiring key-value store layered over a Backend.
type Store struct {
	backend Backend
	logger  *zap.Logger
	clock   Clock
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	scope      Scope
	expiration any
}

// InScope stores the value under scope instead of ScopeUser.
func InScope(scope Scope) SetOption {
	return func(options *setOptions) {
		options.scope = scope
	}
}

// ExpiresAt attaches an absolute expiration. Accepted values are time.Time, *time.Time,
// millisecond timestamps of any numeric kind, and date strings.
func ExpiresAt(value any) SetOption {
	return func(options *setOptions) {
		options.expiration = value
	}
}

// New validates the configuration and probes the backend with a throwaway entry.
func New(configuration Config) (*Store, error) {
	if configuration.Backend == nil {
		return nil, fmt.Errorf("session.store.new: %w", ErrMissingBackend)
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	if err := probeBackend(configuration.Backend); err != nil {
		return nil, fmt.Errorf("session.store.new: %w: %v", ErrUnsupportedBackend, err)
	}
	return &Store{
		backend: configuration.Backend,
		logger:  logger,
		clock:   clock,
	}, nil
}

func probeBackend(backend Backend) error {
	itemIdentifier := "testEntry-" + uuid.NewString()
	if err := backend.SetItem(itemIdentifier, itemIdentifier); err != nil {
		return err
	}
	return backend.RemoveItem(itemIdentifier)
}

// Set stores data under key. The scope defaults to ScopeUser. Existing values are overwritten.
func (store *Store) Set(key string, data any, options ...SetOption) error {
	settings := setOptions{scope: ScopeUser}
	for _, option := range options {
		option(&settings)
	}
	if key == "" {
		return fmt.Errorf("session.store.set: %w", ErrMissingKey)
	}
	if settings.scope == "" {
		settings.scope = ScopeUser
	}
	if !settings.scope.Valid() {
		return fmt.Errorf("session.store.set: %w", invalidScopeError(settings.scope))
	}
	expirationDate, err := parseExpiration(settings.expiration)
	if err != nil {
		return fmt.Errorf("session.store.set: %w", err)
	}
	encoded, err := encodeRecord(expirationDate, data)
	if err != nil {
		return fmt.Errorf("session.store.set: %w", err)
	}

	target := storageKey{scope: settings.scope, name: key}
	_, exists, err := store.backend.GetItem(target.String())
	if err != nil {
		return fmt.Errorf("session.store.set: %w", err)
	}
	if exists {
		store.logger.Debug("overwriting existing session data",
			zap.String("code", "session.store.overwrite"),
			zap.String("key", target.String()))
	}
	if err := store.backend.SetItem(target.String(), encoded); err != nil {
		return fmt.Errorf("session.store.set: %w", err)
	}
	store.logger.Debug("stored session data",
		zap.String("code", "session.store.set"),
		zap.String("key", target.String()),
		zap.Bool("expires", expirationDate != nil))
	return nil
}

// Get returns the value stored under key. Without scopes, ScopeUser is searched before
// ScopeLocal. Missing and expired records report found == false with a nil error;
// undecodable records return ErrCorruptRecord.
func (store *Store) Get(key string, scopes ...Scope) (any, bool, error) {
	var value any
	found, err := store.Decode(key, &value, scopes...)
	if err != nil || !found {
		return nil, found, err
	}
	return value, true, nil
}

// Decode looks key up like Get and unmarshals the stored data into destination.
func (store *Store) Decode(key string, destination any, scopes ...Scope) (bool, error) {
	data, found, err := store.lookup(key, scopes)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, destination); err != nil {
		return false, fmt.Errorf("session.store.decode: %w", err)
	}
	return true, nil
}

func (store *Store) lookup(key string, scopes []Scope) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("session.store.get: %w", ErrMissingKey)
	}
	searched, err := resolveScopes(scopes)
	if err != nil {
		return nil, false, fmt.Errorf("session.store.get: %w", err)
	}

	for _, scope := range searched {
		target := storageKey{scope: scope, name: key}
		raw, exists, getErr := store.backend.GetItem(target.String())
		if getErr != nil {
			return nil, false, fmt.Errorf("session.store.get: %w", getErr)
		}
		if !exists || raw == "" {
			continue
		}

		record, decodeErr := decodeRecord(raw)
		if decodeErr != nil {
			return nil, false, fmt.Errorf("session.store.get: key %s: %w", target, decodeErr)
		}
		if record.expired(store.clock.Now()) {
			if removeErr := store.backend.RemoveItem(target.String()); removeErr != nil {
				return nil, false, fmt.Errorf("session.store.get: %w", removeErr)
			}
			store.logger.Debug("removed expired session data",
				zap.String("code", "session.store.expired"),
				zap.String("key", target.String()))
			return nil, false, nil
		}
		return record.data, true, nil
	}
	return nil, false, nil
}

// Remove deletes key from the given scopes, or from every scope when none are given.
func (store *Store) Remove(key string, scopes ...Scope) error {
	if key == "" {
		return fmt.Errorf("session.store.remove: %w", ErrMissingKey)
	}
	targets, err := resolveScopes(scopes)
	if err != nil {
		return fmt.Errorf("session.store.remove: %w", err)
	}
	for _, scope := range targets {
		target := storageKey{scope: scope, name: key}
		if err := store.backend.RemoveItem(target.String()); err != nil {
			return fmt.Errorf("session.store.remove: %w", err)
		}
	}
	return nil
}

// Logout removes every ScopeUser record.
func (store *Store) Logout() error {
	if err := store.evict(ScopeUser); err != nil {
		return fmt.Errorf("session.store.logout: %w", err)
	}
	return nil
}

// Destroy removes every record in every scope.
func (store *Store) Destroy() error {
	if err := store.evict(Scopes()...); err != nil {
		return fmt.Errorf("session.store.destroy: %w", err)
	}
	return nil
}

// Keys lists the caller keys present in scope. Expiry is not evaluated.
func (store *Store) Keys(scope Scope) ([]string, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("session.store.keys: %w", invalidScopeError(scope))
	}
	rawKeys, err := store.backend.Keys()
	if err != nil {
		return nil, fmt.Errorf("session.store.keys: %w", err)
	}
	names := make([]string, 0, len(rawKeys))
	for _, rawKey := range rawKeys {
		parsed, ok := parseStorageKey(rawKey)
		if ok && parsed.scope == scope {
			names = append(names, parsed.name)
		}
	}
	return names, nil
}

func (store *Store) evict(scopes ...Scope) error {
	rawKeys, err := store.backend.Keys()
	if err != nil {
		return err
	}
	evicted := make(map[Scope]struct{}, len(scopes))
	for _, scope := range scopes {
		evicted[scope] = struct{}{}
	}
	for _, rawKey := range rawKeys {
		parsed, ok := parseStorageKey(rawKey)
		if !ok {
			continue
		}
		if _, match := evicted[parsed.scope]; !match {
			continue
		}
		if err := store.backend.RemoveItem(rawKey); err != nil {
			return err
		}
		store.logger.Debug("removed session data",
			zap.String("code", "session.store.evict"),
			zap.String("key", rawKey))
	}
	return nil
}
