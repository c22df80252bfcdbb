package authclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Sentinel errors exposed by the client.
var (
	ErrMissingBaseURL = errors.New("authclient.missing_base_url")
	ErrMissingStore   = errors.New("authclient.missing_store")
	ErrLoginFailed    = errors.New("authclient.login_failed")
	ErrRevokeFailed   = errors.New("authclient.revoke_failed")
	ErrEmptyToken     = errors.New("authclient.empty_token")
)

const maxErrorBodyBytes = 4096

// StatusError reports a non-2xx response from the token endpoint.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (statusError *StatusError) Error() string {
	if statusError.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", statusError.Method, statusError.URL, statusError.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", statusError.Method, statusError.URL, statusError.StatusCode, statusError.Body)
}

func readStatusError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	statusError := &StatusError{
		StatusCode: response.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if response.Request != nil {
		statusError.Method = response.Request.Method
		if response.Request.URL != nil {
			statusError.URL = redactTokenPath(response.Request.URL.Path)
		}
	}
	return statusError
}

// redactTokenPath hides the token segment of revoke URLs so errors can be logged safely.
func redactTokenPath(path string) string {
	prefix := "/" + accessTokenPath + "/"
	if index := strings.Index(path, prefix); index >= 0 {
		return path[:index+len(prefix)] + "<redacted>"
	}
	return path
}
