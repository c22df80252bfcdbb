// Package authclient obtains and revokes access tokens and keeps them in a session store.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tyemirov/jbsession/pkg/session"
	"go.uber.org/zap"
)

// AccessTokenKey is the session key holding the access token in ScopeUser.
const AccessTokenKey = "accessToken"

const accessTokenPath = "accessToken"

// HTTPDoer is the interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config configures the Client.
type Config struct {
	BaseURL    string
	Store      *session.Store
	HTTPClient HTTPDoer
	Logger     *zap.Logger
}

// Client performs login and logout against the token endpoint.
type Client struct {
	baseURL    string
	store      *session.Store
	httpClient HTTPDoer
	logger     *zap.Logger
}

type loginResponse struct {
	Token string `json:"token"`
}

// New constructs a Client after validating the supplied configuration.
func New(configuration Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("authclient.new: %w", ErrMissingBaseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("authclient.new: %w: %v", ErrMissingBaseURL, err)
	}
	if configuration.Store == nil {
		return nil, fmt.Errorf("authclient.new: %w", ErrMissingStore)
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		store:      configuration.Store,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login posts the credentials as form fields and exchanges them for an access token. On
// success any previous user scoped data is cleared and the token is stored. A failed
// request writes nothing; a failed local write still wraps ErrLoginFailed.
func (client *Client) Login(ctx context.Context, userName string, password string) error {
	token, err := client.requestToken(ctx, userName, password)
	if err != nil {
		client.logger.Warn("login failed",
			zap.String("code", "authclient.login.failed"),
			zap.String("user", userName),
			zap.Error(err))
		return fmt.Errorf("authclient.login: could not login: %w: %w", ErrLoginFailed, err)
	}

	if err := client.store.Logout(); err != nil {
		return fmt.Errorf("authclient.login: %w: %w", ErrLoginFailed, err)
	}
	if err := client.store.Set(AccessTokenKey, token, session.InScope(session.ScopeUser)); err != nil {
		client.logger.Warn("access token not stored",
			zap.String("code", "authclient.login.store_failed"),
			zap.String("user", userName),
			zap.Error(err))
		return fmt.Errorf("authclient.login: %w: %w", ErrLoginFailed, err)
	}
	client.logger.Info("logged in",
		zap.String("code", "authclient.login.success"),
		zap.String("user", userName))
	return nil
}

// Logout revokes the stored token on the server, then clears user scoped data whatever the
// outcome of the revoke call. The token stays readable while the revoke request runs.
// Revoke failures are returned wrapped in ErrRevokeFailed after the local session is cleared.
func (client *Client) Logout(ctx context.Context) error {
	token, found, readErr := client.AccessToken()
	if readErr != nil || !found {
		if clearErr := client.store.Logout(); clearErr != nil {
			return errors.Join(readErr, fmt.Errorf("authclient.logout: %w", clearErr))
		}
		if readErr != nil {
			return fmt.Errorf("authclient.logout: %w", readErr)
		}
		return nil
	}

	revokeErr := client.revokeToken(ctx, token)
	clearErr := client.store.Logout()

	if revokeErr != nil {
		client.logger.Warn("token revoke failed; local session cleared",
			zap.String("code", "authclient.logout.revoke_failed"),
			zap.Error(revokeErr))
		revokeErr = fmt.Errorf("authclient.logout: %w: %w", ErrRevokeFailed, revokeErr)
	}
	if clearErr != nil {
		clearErr = fmt.Errorf("authclient.logout: %w", clearErr)
	}
	if joined := errors.Join(revokeErr, clearErr); joined != nil {
		return joined
	}
	client.logger.Info("logged out", zap.String("code", "authclient.logout.success"))
	return nil
}

// IsAuthenticated reports whether a non-empty access token is stored. It never contacts the server.
func (client *Client) IsAuthenticated() bool {
	_, found, err := client.AccessToken()
	if err != nil {
		client.logger.Warn("access token unreadable",
			zap.String("code", "authclient.token.unreadable"),
			zap.Error(err))
		return false
	}
	return found
}

// AccessToken returns the stored access token.
func (client *Client) AccessToken() (string, bool, error) {
	var token string
	found, err := client.store.Decode(AccessTokenKey, &token, session.ScopeUser)
	if err != nil {
		return "", false, fmt.Errorf("authclient.access_token: %w", err)
	}
	if !found || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// HTTPClient returns an http.Client that sends the stored token as a bearer credential.
func (client *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: &BearerTransport{Client: client}}
}

func (client *Client) requestToken(ctx context.Context, userName string, password string) (string, error) {
	form := url.Values{}
	form.Set("email", userName)
	form.Set("password", password)
	endpoint := client.baseURL + "/" + accessTokenPath
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpRequest.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", readStatusError(response)
	}
	var result loginResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(result.Token) == "" {
		return "", ErrEmptyToken
	}
	return result.Token, nil
}

func (client *Client) revokeToken(ctx context.Context, token string) error {
	endpoint := client.baseURL + "/" + accessTokenPath + "/" + url.PathEscape(token)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	response, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return readStatusError(response)
	}
	return nil
}
