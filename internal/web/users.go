package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tyemirov/jbsession/internal/tokenserver"
	"golang.org/x/crypto/bcrypt"
)

const defaultUserRole = "user"

var (
	// ErrUserProfileNotFound is returned when a profile is missing in the store.
	ErrUserProfileNotFound = errors.New("user_profile_not_found")

	errInvalidUserSpec = errors.New("users.invalid_spec")
	errEmptyUserEmail  = errors.New("users.empty_email")
	errEmptyPassword   = errors.New("users.empty_password")
)

// InMemoryUsers is a bcrypt-backed credential store used for demo and local runs.
type InMemoryUsers struct {
	mutex    sync.RWMutex
	users    map[string]userRecord
	hashCost int
}

// UserProfile represents an application user.
type UserProfile struct {
	Email string
	Roles []string
}

type userRecord struct {
	UserID       string
	Profile      UserProfile
	PasswordHash []byte
}

// NewInMemoryUsers constructs a store with an empty map.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		users:    make(map[string]userRecord),
		hashCost: bcrypt.DefaultCost,
	}
}

// AddUser registers or replaces a user. Roles default to "user".
func (store *InMemoryUsers) AddUser(userEmail string, password string, roles ...string) (string, error) {
	normalizedEmail := normalizeEmail(userEmail)
	if normalizedEmail == "" {
		return "", errEmptyUserEmail
	}
	if password == "" {
		return "", errEmptyPassword
	}
	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(password), store.hashCost)
	if hashErr != nil {
		return "", fmt.Errorf("users.hash: %w", hashErr)
	}
	if len(roles) == 0 {
		roles = []string{defaultUserRole}
	}
	applicationUserID := "user:" + normalizedEmail
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.users[normalizedEmail] = userRecord{
		UserID:       applicationUserID,
		Profile:      UserProfile{Email: normalizedEmail, Roles: roles},
		PasswordHash: passwordHash,
	}
	return applicationUserID, nil
}

// LoadUserSpecs registers users from "email=password" pairs.
func (store *InMemoryUsers) LoadUserSpecs(specs []string) error {
	for _, spec := range specs {
		userEmail, password, found := strings.Cut(strings.TrimSpace(spec), "=")
		if !found {
			return fmt.Errorf("%w: expected email=password", errInvalidUserSpec)
		}
		if _, err := store.AddUser(userEmail, password); err != nil {
			return fmt.Errorf("%w: %w", errInvalidUserSpec, err)
		}
	}
	return nil
}

// Authenticate verifies the password for userEmail.
func (store *InMemoryUsers) Authenticate(ctx context.Context, userEmail string, password string) (string, []string, error) {
	store.mutex.RLock()
	record, ok := store.users[normalizeEmail(userEmail)]
	store.mutex.RUnlock()
	if !ok {
		return "", nil, tokenserver.ErrInvalidCredentials
	}
	if compareErr := bcrypt.CompareHashAndPassword(record.PasswordHash, []byte(password)); compareErr != nil {
		return "", nil, tokenserver.ErrInvalidCredentials
	}
	return record.UserID, record.Profile.Roles, nil
}

// GetUserProfile returns a profile by application user id.
func (store *InMemoryUsers) GetUserProfile(ctx context.Context, applicationUserID string) (UserProfile, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	for _, record := range store.users {
		if record.UserID == applicationUserID {
			return record.Profile, nil
		}
	}
	return UserProfile{}, ErrUserProfileNotFound
}

func normalizeEmail(userEmail string) string {
	return strings.ToLower(strings.TrimSpace(userEmail))
}
