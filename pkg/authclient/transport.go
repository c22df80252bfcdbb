package authclient

import (
	"fmt"
	"net/http"
)

// BearerTransport adds the stored access token to outbound requests.
// Requests pass through unchanged while no token is stored.
type BearerTransport struct {
	Client *Client
	Base   http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (transport *BearerTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	base := transport.Base
	if base == nil {
		base = http.DefaultTransport
	}
	token, found, err := transport.Client.AccessToken()
	if err != nil {
		return nil, fmt.Errorf("authclient.transport: %w", err)
	}
	if !found {
		return base.RoundTrip(request)
	}
	authorized := request.Clone(request.Context())
	authorized.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(authorized)
}
