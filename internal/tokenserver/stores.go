package tokenserver

import "context"

// CredentialStore verifies login credentials.
type CredentialStore interface {
	Authenticate(ctx context.Context, userEmail string, password string) (applicationUserID string, userRoles []string, err error)
}

// AccessTokenStore tracks issued access token identifiers so they can be revoked.
type AccessTokenStore interface {
	Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (tokenID string, err error)
	Validate(ctx context.Context, tokenID string) (applicationUserID string, expiresUnix int64, err error)
	Revoke(ctx context.Context, tokenID string) error
}
