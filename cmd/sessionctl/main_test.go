package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/jbsession/internal/tokenserver"
	"github.com/tyemirov/jbsession/internal/web"
	"github.com/tyemirov/jbsession/pkg/session"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

type cliHarness struct {
	databaseURL string
	serverURL   string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := web.NewInMemoryUsers()
	require.NoError(t, users.LoadUserSpecs([]string{"fxstr@example.com=mypwd"}))
	tokenServer, err := tokenserver.NewServer(tokenserver.Dependencies{
		Config:      tokenserver.ServerConfig{SigningKey: []byte("signing-secret"), TokenTTL: time.Hour},
		Credentials: users,
		Tokens:      tokenserver.NewMemoryAccessTokenStore(nil),
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	router := gin.New()
	tokenServer.MountTokenRoutes(router)
	router.GET("/me", tokenServer.RequireAccessToken(), web.HandleWhoAmI(zaptest.NewLogger(t), users))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &cliHarness{
		databaseURL: "sqlite://" + filepath.Join(t.TempDir(), "sessionctl.db"),
		serverURL:   server.URL,
	}
}

func (harness *cliHarness) run(t *testing.T, arguments ...string) (string, error) {
	t.Helper()
	command := newRootCommand()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs(append([]string{"--database_url", harness.databaseURL, "--server_url", harness.serverURL}, arguments...))
	err := command.ExecuteContext(context.Background())
	return output.String(), err
}

func TestSetGetRemoveRoundTrip(t *testing.T) {
	harness := newCLIHarness(t)

	_, err := harness.run(t, "set", "profile", `{"theme":"dark","size":3}`)
	require.NoError(t, err)
	_, err = harness.run(t, "set", "greeting", "hello world", "--scope", "local")
	require.NoError(t, err)

	output, err := harness.run(t, "get", "profile")
	require.NoError(t, err)
	var profile map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &profile))
	assert.Equal(t, "dark", profile["theme"])
	assert.Equal(t, float64(3), profile["size"])

	output, err = harness.run(t, "--output", "yaml", "get", "greeting", "--scope", "local")
	require.NoError(t, err)
	var greeting string
	require.NoError(t, yaml.Unmarshal([]byte(output), &greeting))
	assert.Equal(t, "hello world", greeting)

	_, err = harness.run(t, "remove", "profile")
	require.NoError(t, err)
	_, err = harness.run(t, "get", "profile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListAndDestroy(t *testing.T) {
	harness := newCLIHarness(t)

	_, err := harness.run(t, "set", "draft", `"unsaved"`)
	require.NoError(t, err)
	_, err = harness.run(t, "set", "preference", `true`, "--scope", "local")
	require.NoError(t, err)

	output, err := harness.run(t, "list")
	require.NoError(t, err)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal([]byte(output), &listing))
	assert.Equal(t, []string{"draft"}, listing["user"])
	assert.Equal(t, []string{"preference"}, listing["local"])

	_, err = harness.run(t, "destroy")
	require.NoError(t, err)

	output, err = harness.run(t, "list", "--scope", "local")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(output), &listing))
	assert.Empty(t, listing["local"])
}

func TestSetHonorsExpiration(t *testing.T) {
	harness := newCLIHarness(t)

	_, err := harness.run(t, "set", "stale", `1`, "--expires", "2001-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = harness.run(t, "get", "stale")
	require.Error(t, err, "expired entries must read as absent")

	_, err = harness.run(t, "set", "fresh", `1`, "--expires", "not-a-date")
	require.ErrorIs(t, err, session.ErrInvalidExpiration)
}

func TestInvalidFlagsAreRejected(t *testing.T) {
	harness := newCLIHarness(t)

	_, err := harness.run(t, "get", "key", "--scope", "global")
	require.ErrorIs(t, err, session.ErrInvalidScope)

	_, err = harness.run(t, "--output", "xml", "list")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), configCodeInvalidOutput))
}

func TestLoginStatusWhoAmILogout(t *testing.T) {
	harness := newCLIHarness(t)

	output, err := harness.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, output, "not authenticated")

	_, err = harness.run(t, "login", "fxstr@example.com")
	require.True(t, errors.Is(err, errMissingPassword))

	_, err = harness.run(t, "login", "fxstr@example.com", "--password", "wrong")
	require.Error(t, err)

	_, err = harness.run(t, "set", "draft", `"unsaved"`)
	require.NoError(t, err)
	output, err = harness.run(t, "login", "fxstr@example.com", "--password", "mypwd")
	require.NoError(t, err)
	assert.Contains(t, output, "logged in")

	output, err = harness.run(t, "status")
	require.NoError(t, err)
	assert.NotContains(t, output, "not authenticated")

	output, err = harness.run(t, "list", "--scope", "user")
	require.NoError(t, err)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal([]byte(output), &listing))
	assert.Equal(t, []string{"accessToken"}, listing["user"], "login clears previous user data")

	output, err = harness.run(t, "whoami")
	require.NoError(t, err)
	var profile map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &profile))
	assert.Equal(t, "fxstr@example.com", profile["user_email"])

	_, err = harness.run(t, "logout")
	require.NoError(t, err)
	output, err = harness.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, output, "not authenticated")

	_, err = harness.run(t, "whoami")
	require.Error(t, err)
}

func TestParseValueArgument(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, parseValueArgument(`{"a":1}`))
	assert.Equal(t, "plain text", parseValueArgument("plain text"))
	assert.Nil(t, parseValueArgument("null"))
}

func TestOpenBackendSelectsByScheme(t *testing.T) {
	handle, err := openBackend(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "pick.db"))
	require.NoError(t, err)
	defer func() { _ = handle.close() }()
	_, isDatabase := handle.backend.(*session.DatabaseBackend)
	assert.True(t, isDatabase)

	_, err = openBackend(context.Background(), "mysql://localhost/db")
	require.Error(t, err)
}
