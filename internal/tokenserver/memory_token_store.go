package tokenserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAccessTokenStore is an in-memory store intended for tests and dev.
type MemoryAccessTokenStore struct {
	mutex sync.Mutex
	byID  map[string]*memoryRecord
	clock Clock
}

type memoryRecord struct {
	TokenID       string
	UserID        string
	ExpiresUnix   int64
	RevokedAtUnix int64
	IssuedAtUnix  int64
}

// NewMemoryAccessTokenStore creates a new in-memory token store. A nil clock uses the system clock.
func NewMemoryAccessTokenStore(clock Clock) *MemoryAccessTokenStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryAccessTokenStore{
		byID:  make(map[string]*memoryRecord),
		clock: clock,
	}
}

// Issue registers a new token identifier for the user.
func (store *MemoryAccessTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (string, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return "", fmt.Errorf("access_token_store.issue.memory: %w", ErrAccessTokenEmptyUser)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID := newAccessTokenID()
	store.byID[tokenID] = &memoryRecord{
		TokenID:      tokenID,
		UserID:       applicationUserID,
		ExpiresUnix:  expiresUnix,
		IssuedAtUnix: store.clock.Now().Unix(),
	}
	return tokenID, nil
}

// Validate returns the owner and expiry of a live token.
func (store *MemoryAccessTokenStore) Validate(ctx context.Context, tokenID string) (string, int64, error) {
	if strings.TrimSpace(tokenID) == "" {
		return "", 0, fmt.Errorf("access_token_store.validate.memory: %w", ErrAccessTokenEmptyID)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	rec := store.byID[tokenID]
	if rec == nil {
		return "", 0, fmt.Errorf("access_token_store.validate.memory: %w", ErrAccessTokenNotFound)
	}
	if rec.RevokedAtUnix != 0 {
		return "", 0, fmt.Errorf("access_token_store.validate.memory: %w", ErrAccessTokenRevoked)
	}
	if time.Unix(rec.ExpiresUnix, 0).Before(store.clock.Now()) {
		return "", 0, fmt.Errorf("access_token_store.validate.memory: %w", ErrAccessTokenExpired)
	}
	return rec.UserID, rec.ExpiresUnix, nil
}

// Revoke marks a token as revoked.
func (store *MemoryAccessTokenStore) Revoke(ctx context.Context, tokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	rec := store.byID[tokenID]
	if rec == nil {
		return fmt.Errorf("access_token_store.revoke.memory: %w", ErrAccessTokenNotFound)
	}
	if rec.RevokedAtUnix != 0 {
		return fmt.Errorf("access_token_store.revoke.memory: %w", ErrAccessTokenAlreadyRevoked)
	}
	rec.RevokedAtUnix = store.clock.Now().Unix()
	return nil
}

func newAccessTokenID() string {
	return uuid.NewString()
}
