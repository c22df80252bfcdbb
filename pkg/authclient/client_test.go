package authclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/jbsession/pkg/session"
	"go.uber.org/zap/zaptest"
)

const (
	validUserName = "fxstr"
	validPassword = "mypwd"
	validToken    = "a1234"
)

type stubServer struct {
	server        *httptest.Server
	loginCalls    atomic.Int32
	revokeCalls   atomic.Int32
	revokedToken  atomic.Value
	revokeStatus  int
	loginToken    string
	onRevoke      func()
	authorization atomic.Value
	contentType   atomic.Value
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := &stubServer{revokeStatus: http.StatusOK, loginToken: validToken}
	router := gin.New()
	router.POST("/accessToken", func(contextGin *gin.Context) {
		stub.loginCalls.Add(1)
		stub.contentType.Store(contextGin.ContentType())
		if contextGin.PostForm("email") != validUserName || contextGin.PostForm("password") != validPassword {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"token": stub.loginToken})
	})
	router.DELETE("/accessToken/:token", func(contextGin *gin.Context) {
		stub.revokeCalls.Add(1)
		stub.revokedToken.Store(contextGin.Param("token"))
		if stub.onRevoke != nil {
			stub.onRevoke()
		}
		contextGin.Status(stub.revokeStatus)
	})
	router.GET("/me", func(contextGin *gin.Context) {
		stub.authorization.Store(contextGin.GetHeader("Authorization"))
		contextGin.Status(http.StatusNoContent)
	})
	stub.server = httptest.NewServer(router)
	t.Cleanup(stub.server.Close)
	return stub
}

func newTestClient(t *testing.T, baseURL string) (*Client, *session.Store, *session.MemoryBackend) {
	t.Helper()
	backend := session.NewMemoryBackend()
	store, err := session.New(session.Config{Backend: backend, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	client, err := New(Config{BaseURL: baseURL, Store: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return client, store, backend
}

func TestNewValidatesConfig(t *testing.T) {
	store, err := session.New(session.Config{Backend: session.NewMemoryBackend()})
	require.NoError(t, err)

	_, err = New(Config{Store: store})
	require.ErrorIs(t, err, ErrMissingBaseURL)

	_, err = New(Config{BaseURL: "http://localhost"})
	require.ErrorIs(t, err, ErrMissingStore)
}

func TestLoginStoresAccessToken(t *testing.T) {
	stub := newStubServer(t)
	client, store, _ := newTestClient(t, stub.server.URL+"/")

	require.NoError(t, store.Set("staleUserData", "old"))
	require.NoError(t, store.Set("preference", "kept", session.InScope(session.ScopeLocal)))

	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))

	assert.True(t, client.IsAuthenticated())
	token, found, err := store.Get(AccessTokenKey, session.ScopeUser)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, validToken, token)

	_, found, err = store.Get("staleUserData")
	require.NoError(t, err)
	assert.False(t, found, "stale user data must be cleared on login")

	preference, found, err := store.Get("preference")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "kept", preference)
	assert.Equal(t, int32(1), stub.loginCalls.Load())
}

func TestLoginPostsCredentialsAsFormFields(t *testing.T) {
	stub := newStubServer(t)
	client, _, _ := newTestClient(t, stub.server.URL)

	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))
	assert.Equal(t, "application/x-www-form-urlencoded", stub.contentType.Load())
}

type rejectingTokenBackend struct {
	*session.MemoryBackend
}

func (backend rejectingTokenBackend) SetItem(key string, value string) error {
	if key == "jb-session-user-"+AccessTokenKey {
		return errors.New("quota exceeded")
	}
	return backend.MemoryBackend.SetItem(key, value)
}

func TestLoginWrapsStoreFailureAsLoginFailure(t *testing.T) {
	stub := newStubServer(t)
	store, err := session.New(session.Config{Backend: rejectingTokenBackend{MemoryBackend: session.NewMemoryBackend()}})
	require.NoError(t, err)
	client, err := New(Config{BaseURL: stub.server.URL, Store: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	err = client.Login(context.Background(), validUserName, validPassword)
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.False(t, client.IsAuthenticated())
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	stub := newStubServer(t)
	client, store, _ := newTestClient(t, stub.server.URL)
	require.NoError(t, store.Set("staleUserData", "old"))

	err := client.Login(context.Background(), validUserName, "blah")
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "could not login")

	var statusError *StatusError
	require.True(t, errors.As(err, &statusError))
	assert.Equal(t, http.StatusUnauthorized, statusError.StatusCode)
	assert.Contains(t, statusError.Body, "invalid_credentials")

	assert.False(t, client.IsAuthenticated())
	value, found, getErr := store.Get("staleUserData")
	require.NoError(t, getErr)
	require.True(t, found, "failed login must not write or clear state")
	assert.Equal(t, "old", value)
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	stub := newStubServer(t)
	stub.loginToken = ""
	client, _, _ := newTestClient(t, stub.server.URL)

	err := client.Login(context.Background(), validUserName, validPassword)
	require.ErrorIs(t, err, ErrLoginFailed)
	require.ErrorIs(t, err, ErrEmptyToken)
	assert.False(t, client.IsAuthenticated())
}

func TestLoginTransportFailure(t *testing.T) {
	stub := newStubServer(t)
	client, _, _ := newTestClient(t, stub.server.URL)
	stub.server.Close()

	err := client.Login(context.Background(), validUserName, validPassword)
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.False(t, client.IsAuthenticated())
}

func TestLogoutRevokesTokenBeforeClearingSession(t *testing.T) {
	stub := newStubServer(t)
	client, _, _ := newTestClient(t, stub.server.URL)
	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))

	var authenticatedDuringRevoke atomic.Bool
	stub.onRevoke = func() {
		authenticatedDuringRevoke.Store(client.IsAuthenticated())
	}

	require.NoError(t, client.Logout(context.Background()))

	assert.Equal(t, int32(1), stub.revokeCalls.Load())
	assert.Equal(t, validToken, stub.revokedToken.Load())
	assert.True(t, authenticatedDuringRevoke.Load(), "token must stay readable while revoke is in flight")
	assert.False(t, client.IsAuthenticated())
}

func TestLogoutClearsSessionWhenRevokeFails(t *testing.T) {
	stub := newStubServer(t)
	stub.revokeStatus = http.StatusInternalServerError
	client, _, _ := newTestClient(t, stub.server.URL)
	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))

	err := client.Logout(context.Background())
	require.ErrorIs(t, err, ErrRevokeFailed)

	var statusError *StatusError
	require.True(t, errors.As(err, &statusError))
	assert.Equal(t, http.StatusInternalServerError, statusError.StatusCode)
	assert.NotContains(t, err.Error(), validToken)
	assert.False(t, client.IsAuthenticated())
}

func TestLogoutClearsSessionWhenServerUnreachable(t *testing.T) {
	stub := newStubServer(t)
	client, _, _ := newTestClient(t, stub.server.URL)
	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))
	stub.server.Close()

	err := client.Logout(context.Background())
	require.ErrorIs(t, err, ErrRevokeFailed)
	assert.False(t, client.IsAuthenticated())
}

func TestLogoutWithoutTokenSkipsNetwork(t *testing.T) {
	stub := newStubServer(t)
	client, store, _ := newTestClient(t, stub.server.URL)
	require.NoError(t, store.Set("draft", "unsaved"))

	require.NoError(t, client.Logout(context.Background()))

	assert.Equal(t, int32(0), stub.revokeCalls.Load())
	_, found, err := store.Get("draft")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLogoutWithUnreadableTokenClearsSession(t *testing.T) {
	stub := newStubServer(t)
	client, _, backend := newTestClient(t, stub.server.URL)
	require.NoError(t, backend.SetItem("jb-session-user-accessToken", "{broken"))

	err := client.Logout(context.Background())
	require.ErrorIs(t, err, session.ErrCorruptRecord)
	assert.Equal(t, int32(0), stub.revokeCalls.Load())
	assert.Equal(t, 0, backend.Len())
}

func TestIsAuthenticatedIgnoresEmptyToken(t *testing.T) {
	client, store, _ := newTestClient(t, "http://localhost")
	require.NoError(t, store.Set(AccessTokenKey, ""))
	assert.False(t, client.IsAuthenticated())

	require.NoError(t, store.Set(AccessTokenKey, "token-value", session.InScope(session.ScopeLocal)))
	assert.False(t, client.IsAuthenticated(), "only the user scope counts")
}

func TestBearerTransportAddsAuthorization(t *testing.T) {
	stub := newStubServer(t)
	client, _, _ := newTestClient(t, stub.server.URL)

	response, err := client.HTTPClient().Get(stub.server.URL + "/me")
	require.NoError(t, err)
	_ = response.Body.Close()
	assert.Equal(t, "", stub.authorization.Load())

	require.NoError(t, client.Login(context.Background(), validUserName, validPassword))
	response, err = client.HTTPClient().Get(stub.server.URL + "/me")
	require.NoError(t, err)
	_ = response.Body.Close()
	assert.Equal(t, "Bearer "+validToken, stub.authorization.Load())
}

func TestRedactTokenPath(t *testing.T) {
	assert.Equal(t, "/api/accessToken/<redacted>", redactTokenPath("/api/accessToken/a1234"))
	assert.Equal(t, "/accessToken", redactTokenPath("/accessToken"))
}
