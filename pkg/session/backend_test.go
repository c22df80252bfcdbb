package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStorageKey(t *testing.T) {
	testCases := []struct {
		raw      string
		expected storageKey
		ok       bool
	}{
		{raw: "jb-session-user-accessToken", expected: storageKey{scope: ScopeUser, name: "accessToken"}, ok: true},
		{raw: "jb-session-local-multi-part-key", expected: storageKey{scope: ScopeLocal, name: "multi-part-key"}, ok: true},
		{raw: "jb-session-userX-accessToken", ok: false},
		{raw: "jb-session-user-", ok: false},
		{raw: "jb-session-user", ok: false},
		{raw: "other-user-accessToken", ok: false},
		{raw: "testEntry-1234", ok: false},
	}
	for _, testCase := range testCases {
		parsed, ok := parseStorageKey(testCase.raw)
		assert.Equal(t, testCase.ok, ok, testCase.raw)
		if testCase.ok {
			assert.Equal(t, testCase.expected, parsed)
			assert.Equal(t, testCase.raw, parsed.String())
		}
	}
}

func TestScopePriorityOrder(t *testing.T) {
	scopes := Scopes()
	require.Equal(t, []Scope{ScopeUser, ScopeLocal}, scopes)
	for index := 1; index < len(scopes); index++ {
		assert.Less(t, scopes[index-1].Priority(), scopes[index].Priority())
	}
	assert.Equal(t, -1, Scope("none").Priority())
	assert.False(t, Scope("").Valid())
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope(" local ")
	require.NoError(t, err)
	assert.Equal(t, ScopeLocal, scope)

	_, err = ParseScope("session")
	require.ErrorIs(t, err, ErrInvalidScope)
}

func runBackendContract(t *testing.T, backend Backend) {
	t.Helper()

	_, found, err := backend.GetItem("jb-session-user-missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, backend.SetItem("jb-session-user-b", "first"))
	require.NoError(t, backend.SetItem("jb-session-user-b", "second"))
	require.NoError(t, backend.SetItem("jb-session-local-a", "local"))

	value, found, err := backend.GetItem("jb-session-user-b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", value)

	keys, err := backend.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"jb-session-local-a", "jb-session-user-b"}, keys)

	require.NoError(t, backend.RemoveItem("jb-session-user-b"))
	require.NoError(t, backend.RemoveItem("jb-session-user-never"))
	keys, err = backend.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"jb-session-local-a"}, keys)

	store, err := New(Config{Backend: backend})
	require.NoError(t, err)
	require.NoError(t, store.Set("accessToken", "a1234"))
	require.NoError(t, store.Logout())
	_, found, err = store.Get("accessToken")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.Destroy())
	keys, err = backend.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryBackendContract(t *testing.T) {
	runBackendContract(t, NewMemoryBackend())
}

func TestDatabaseBackendContract(t *testing.T) {
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "session.db")
	backend, err := NewDatabaseBackend(context.Background(), databaseURL)
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()
	assert.Equal(t, "sqlite", backend.Driver())

	runBackendContract(t, backend)
}

func TestDatabaseBackendPersistsAcrossReopen(t *testing.T) {
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "session.db")
	first, err := NewDatabaseBackend(context.Background(), databaseURL)
	require.NoError(t, err)
	store, err := New(Config{Backend: first})
	require.NoError(t, err)
	require.NoError(t, store.Set("theme", "dark", InScope(ScopeLocal)))
	require.NoError(t, first.Close())

	second, err := NewDatabaseBackend(context.Background(), databaseURL)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	reopened, err := New(Config{Backend: second})
	require.NoError(t, err)

	value, found, err := reopened.Get("theme")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "dark", value)
}

func TestDatabaseBackendRejectsUnsupportedURL(t *testing.T) {
	_, err := NewDatabaseBackend(context.Background(), "mysql://localhost/app")
	require.Error(t, err)
}

func TestRedisBackendContract(t *testing.T) {
	redisURL := os.Getenv("JBSESSION_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("JBSESSION_TEST_REDIS_URL not set")
	}
	backend, err := NewRedisBackend(context.Background(), redisURL)
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()

	existing, err := backend.Keys()
	require.NoError(t, err)
	for _, key := range existing {
		require.NoError(t, backend.RemoveItem(key))
	}

	runBackendContract(t, backend)
}

func TestRedisBackendRejectsInvalidURL(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), "http://localhost:6379")
	require.Error(t, err)
}
