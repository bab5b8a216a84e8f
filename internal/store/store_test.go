package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_RegisterAndAuthenticate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewUserStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Register("bob", "secret1", []string{"pub"}))
	assert.True(t, s.Authenticate("bob", "secret1"))
	assert.False(t, s.Authenticate("bob", "wrong"))

	users, rules := s.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
	assert.True(t, users[0].Dynamic)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"pub"}, rules[0].Roots)
}

func TestUserStore_RejectsDuplicateCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewUserStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Register("Bob", "secret1", nil))
	err = s.Register("bob", "other1", nil)
	assert.Error(t, err)
}

func TestUserStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewUserStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Register("bob", "secret1", nil))

	reloaded, err := NewUserStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Authenticate("bob", "secret1"))
}

func TestUserStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewUserStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Register("bob", "secret1", nil))

	require.NoError(t, s.Remove("bob"))
	assert.False(t, s.Authenticate("bob", "secret1"))

	err = s.Remove("bob")
	assert.Error(t, err)
}

func TestShareStore_SetAndClearQuota(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shares.json")
	s, err := NewShareStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetQuota("pub", 1000))
	assert.Equal(t, int64(1000), s.Overrides()["pub"])

	require.NoError(t, s.SetQuota("pub", 0))
	_, ok := s.Overrides()["pub"]
	assert.False(t, ok)
}

func TestServerStore_DedupsAndValidatesScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	s, err := NewServerStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetCustomURLs([]string{
		"https://example.com", "https://example.com", "ftp://bad.example.com",
	}))
	assert.Equal(t, []string{"https://example.com"}, s.CustomURLs())
}
