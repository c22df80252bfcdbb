package tokenserver

import "errors"

var (
	// ErrInvalidCredentials indicates that the supplied email and password do not match.
	ErrInvalidCredentials = errors.New("credentials.invalid")
	// ErrAccessTokenNotFound indicates no access token matched the provided identifier.
	ErrAccessTokenNotFound = errors.New("access_token_store.not_found")
	// ErrAccessTokenRevoked indicates the access token has been revoked.
	ErrAccessTokenRevoked = errors.New("access_token_store.revoked")
	// ErrAccessTokenExpired indicates the access token has exceeded its expiry.
	ErrAccessTokenExpired = errors.New("access_token_store.expired")
	// ErrAccessTokenAlreadyRevoked signals a repeated revoke call on an already-revoked token.
	ErrAccessTokenAlreadyRevoked = errors.New("access_token_store.already_revoked")
	// ErrAccessTokenEmptyID indicates that the provided token identifier is empty.
	ErrAccessTokenEmptyID = errors.New("access_token_store.empty_token_id")
	// ErrAccessTokenEmptyUser indicates that a token was requested for an empty user id.
	ErrAccessTokenEmptyUser = errors.New("access_token_store.empty_user_id")
)
