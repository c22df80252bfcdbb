package tokenserver

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/jbsession/pkg/tokenvalidator"
)

var (
	errMintEmptySubject = errors.New("jwt.mint.failure: subject must be non-empty")
	errMintEmptyTokenID = errors.New("jwt.mint.failure: token id must be non-empty")
)

const notBeforeSkew = 30 * time.Second

// MintAccessToken creates a signed HS256 access token carrying tokenID as its jti.
func MintAccessToken(clock Clock, configuration ServerConfig, tokenID string, applicationUserID string, userEmail string, userRoles []string) (string, time.Time, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return "", time.Time{}, errMintEmptySubject
	}
	if strings.TrimSpace(tokenID) == "" {
		return "", time.Time{}, errMintEmptyTokenID
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(configuration.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenvalidator.Claims{
		UserID:    applicationUserID,
		UserEmail: userEmail,
		UserRoles: userRoles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    configuration.Issuer,
			Subject:   applicationUserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-notBeforeSkew)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(configuration.SigningKey)
	return signed, expiresAt, err
}
