package tokenserver

import (
	"testing"
	"time"

	"github.com/tyemirov/jbsession/pkg/tokenvalidator"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		SigningKey: []byte("signing-key"),
		Issuer:     "issuer",
		TokenTTL:   2 * time.Minute,
	}
}

func TestMintAccessTokenRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	_, _, err := MintAccessToken(fixedClock{timestamp: time.Unix(1700000000, 0)}, testServerConfig(), "token-1", "", "user@example.com", []string{"user"})
	if err == nil {
		t.Fatalf("expected error when user ID is empty")
	}

	expected := "jwt.mint.failure: subject must be non-empty"
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, err.Error())
	}
}

func TestMintAccessTokenRejectsEmptyTokenID(t *testing.T) {
	t.Parallel()

	_, _, err := MintAccessToken(fixedClock{timestamp: time.Unix(1700000000, 0)}, testServerConfig(), " ", "user-123", "user@example.com", nil)
	if err == nil {
		t.Fatalf("expected error when token ID is empty")
	}
}

func TestMintAccessTokenCarriesClockTimestamps(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	clock := fixedClock{timestamp: reference}
	token, expiresAt, err := MintAccessToken(clock, testServerConfig(), "token-1", "user-123", "user@example.com", []string{"user"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected signed token")
	}
	expectedExpiry := reference.Add(2 * time.Minute)
	if !expiresAt.Equal(expectedExpiry) {
		t.Fatalf("expected expiry %v, got %v", expectedExpiry, expiresAt)
	}

	validator, validatorErr := tokenvalidator.New(tokenvalidator.Config{SigningKey: []byte("signing-key"), Issuer: "issuer", Clock: clock})
	if validatorErr != nil {
		t.Fatalf("validator error: %v", validatorErr)
	}
	claims, validateErr := validator.ValidateToken(token)
	if validateErr != nil {
		t.Fatalf("minted token failed validation: %v", validateErr)
	}
	if claims.GetTokenID() != "token-1" || claims.Subject != "user-123" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}
